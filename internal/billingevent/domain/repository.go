package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*BillingEvent, error)
	// InsertEvent reports false when the event id is already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *BillingEvent) (bool, error)
}
