package domain

import "context"

// Service applies verified provider webhooks to local subscription state.
type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error)
}
