package domain

import "errors"

var (
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidCancelRequest = errors.New("invalid_cancel_request")
	ErrInvalidStatus        = errors.New("invalid_subscription_status")
	ErrCancellationPending  = errors.New("cancellation_pending")
)
