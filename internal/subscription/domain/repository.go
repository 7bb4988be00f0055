package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods take the *gorm.DB to run on so callers can pass a transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindCurrentByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindCurrentByUserForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	// FindBillableByUser returns the subscription that usage is billed to at
	// asOf: active, or pending cancellation with an effective date not yet past.
	FindBillableByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, asOf time.Time) (*Subscription, error)
	FindByProviderIDForUpdate(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
}
