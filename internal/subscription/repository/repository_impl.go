package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, user_id, plan_id, stripe_subscription_id, stripe_subscription_item_id,
	stripe_price_id, status, activated_at, cancel_requested_at, effective_cancel_date,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO user_subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.PlanID,
		subscription.StripeSubscriptionID,
		subscription.StripeSubscriptionItemID,
		subscription.StripePriceID,
		subscription.Status,
		subscription.ActivatedAt,
		subscription.CancelRequestedAt,
		subscription.EffectiveCancelDate,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET
			plan_id = ?,
			stripe_subscription_id = ?,
			stripe_subscription_item_id = ?,
			stripe_price_id = ?,
			status = ?,
			activated_at = ?,
			cancel_requested_at = ?,
			effective_cancel_date = ?,
			updated_at = ?
		 WHERE id = ?`,
		subscription.PlanID,
		subscription.StripeSubscriptionID,
		subscription.StripeSubscriptionItemID,
		subscription.StripePriceID,
		subscription.Status,
		subscription.ActivatedAt,
		subscription.CancelRequestedAt,
		subscription.EffectiveCancelDate,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = ?`,
		id,
	)
}

// FindCurrentByUser returns the latest non-cancelled record of the user.
func (r *repo) FindCurrentByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn, currentByUserQuery(false, conn), userID, subscriptiondomain.StatusCancelled)
}

func (r *repo) FindCurrentByUserForUpdate(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn, currentByUserQuery(true, conn), userID, subscriptiondomain.StatusCancelled)
}

func (r *repo) FindBillableByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID, asOf time.Time) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions
		 WHERE user_id = ?
		   AND (status = ? OR (status = ? AND (effective_cancel_date IS NULL OR effective_cancel_date >= ?)))
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusPendingCancellation,
		subscriptiondomain.EffectiveDateOf(asOf),
	)
}

func (r *repo) FindByProviderIDForUpdate(ctx context.Context, conn *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE stripe_subscription_id = ?`
	if db.SupportsRowLocks(conn) {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, conn, query, providerSubscriptionID)
}

func currentByUserQuery(lock bool, conn *gorm.DB) string {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
		 WHERE user_id = ? AND status <> ?
		 ORDER BY created_at DESC LIMIT 1`
	if lock && db.SupportsRowLocks(conn) {
		query += ` FOR UPDATE`
	}
	return query
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&subscription).Error; err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}
