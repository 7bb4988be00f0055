package domain

import "errors"

var (
	ErrInvalidPayload      = errors.New("invalid_webhook_payload")
	ErrUnknownEventKind    = errors.New("unknown_event_kind")
	ErrMissingSubscription = errors.New("missing_subscription_reference")
	ErrMissingEventID      = errors.New("missing_event_id")
)
