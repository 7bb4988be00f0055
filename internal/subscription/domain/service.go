package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	AssignPlan(ctx context.Context, userID snowflake.ID, planID int64) (*SubscriptionView, error)
	RequestCancellation(ctx context.Context, userID snowflake.ID) (*SubscriptionView, error)
	Current(ctx context.Context, userID snowflake.ID) (*SubscriptionView, error)
}
