package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrNotConfigured    = errors.New("billing_provider_not_configured")
	ErrProviderFailure  = errors.New("billing_provider_failure")
)

type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

type CreateCustomerInput struct {
	Email  string
	Name   string
	UserID string
}

type CreateSubscriptionInput struct {
	CustomerID     string
	PriceID        string
	MeteredPriceID string
	IdempotencyKey string
}

// Subscription is the provider-side view returned after create calls.
type Subscription struct {
	ID            string
	Status        string
	PriceID       string
	MeteredItemID string
}

// UsageReport is one increment of metered units for a customer.
type UsageReport struct {
	CustomerID         string
	SubscriptionItemID string
	Quantity           int64
	Timestamp          time.Time
	Identifier         string
}

// WebhookEvent is a verified provider event. Data holds the raw object JSON.
type WebhookEvent struct {
	ID      string
	Type    string
	Created time.Time
	Data    json.RawMessage
	Payload []byte
}

// Gateway is the billing provider surface consumed by the lifecycle services.
type Gateway interface {
	CreateCustomer(ctx context.Context, in CreateCustomerInput) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*Subscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error
	ScheduleCancellation(ctx context.Context, subscriptionID string, at time.Time) error
	// CancelSubscription ends a subscription immediately. A subscription the
	// provider no longer knows is treated as already cancelled.
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ReportUsage(ctx context.Context, report UsageReport) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
