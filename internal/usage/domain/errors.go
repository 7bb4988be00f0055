package domain

import "errors"

var (
	ErrInvalidDomain          = errors.New("invalid_domain")
	ErrInvalidDataUsage       = errors.New("invalid_data_usage")
	ErrInvalidYear            = errors.New("invalid_year")
	ErrInvalidMonth           = errors.New("invalid_month")
	ErrNoBillableSubscription = errors.New("no_billable_subscription")
	ErrBillingLinkMissing     = errors.New("billing_link_missing")
	ErrIngestInProgress       = errors.New("ingest_in_progress")
)
