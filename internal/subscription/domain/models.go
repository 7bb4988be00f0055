package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive              Status = "active"
	StatusPendingCancellation Status = "pending_cancellation"
	StatusInactive            Status = "inactive"
	StatusCancelled           Status = "cancelled"
)

// Subscription is a user's subscription record. Status changes go through
// the transition methods so the cancellation fields stay consistent with it.
type Subscription struct {
	ID                       snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID                   snowflake.ID `gorm:"not null;index"`
	PlanID                   int64        `gorm:"not null"`
	StripeSubscriptionID     string       `gorm:"type:text;uniqueIndex:ux_user_subscriptions_stripe_id,where:stripe_subscription_id <> ''"`
	StripeSubscriptionItemID string       `gorm:"type:text"`
	StripePriceID            string       `gorm:"type:text"`
	Status                   Status       `gorm:"type:text;not null"`
	ActivatedAt              time.Time    `gorm:"not null"`
	CancelRequestedAt        *time.Time
	EffectiveCancelDate      *time.Time
	CreatedAt                time.Time `gorm:"not null"`
	UpdatedAt                time.Time `gorm:"not null"`
}

func (Subscription) TableName() string { return "user_subscriptions" }

// Activate starts a new term at the given time.
func (s *Subscription) Activate(at time.Time) {
	s.Status = StatusActive
	s.ActivatedAt = at
	s.clearCancellation()
	s.UpdatedAt = at
}

func (s *Subscription) Deactivate(at time.Time) {
	s.Status = StatusInactive
	s.clearCancellation()
	s.UpdatedAt = at
}

// RequestCancellation records a user cancellation request made at requestedAt.
func (s *Subscription) RequestCancellation(requestedAt time.Time) error {
	switch s.Status {
	case StatusActive:
	case StatusPendingCancellation:
		return ErrCancellationPending
	default:
		return ErrInvalidStatus
	}

	effective, err := ScheduleCancellation(s.ActivatedAt, requestedAt)
	if err != nil {
		return err
	}
	s.Status = StatusPendingCancellation
	s.CancelRequestedAt = &requestedAt
	s.EffectiveCancelDate = &effective
	s.UpdatedAt = requestedAt
	return nil
}

// MarkPendingCancellation applies a provider-side scheduled cancellation.
func (s *Subscription) MarkPendingCancellation(effective, at time.Time) {
	s.Status = StatusPendingCancellation
	s.EffectiveCancelDate = &effective
	s.UpdatedAt = at
}

// Cancel ends the subscription; effective is when the cancellation took hold.
func (s *Subscription) Cancel(effective, at time.Time) {
	s.Status = StatusCancelled
	s.EffectiveCancelDate = &effective
	s.UpdatedAt = at
}

func (s *Subscription) ChangePlan(planID int64, priceID string, at time.Time) {
	s.PlanID = planID
	s.StripePriceID = priceID
	s.UpdatedAt = at
}

func (s *Subscription) clearCancellation() {
	s.CancelRequestedAt = nil
	s.EffectiveCancelDate = nil
}

type SubscriptionView struct {
	ID                   string     `json:"id"`
	PlanID               int64      `json:"planId"`
	Status               Status     `json:"status"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId,omitempty"`
	ActivatedAt          time.Time  `json:"activatedAt"`
	CancelRequestedAt    *time.Time `json:"cancelRequestedAt,omitempty"`
	EffectiveCancelDate  string     `json:"effectiveCancelDate,omitempty"`
}

func ToView(s *Subscription) SubscriptionView {
	view := SubscriptionView{
		ID:                   s.ID.String(),
		PlanID:               s.PlanID,
		Status:               s.Status,
		StripeSubscriptionID: s.StripeSubscriptionID,
		ActivatedAt:          s.ActivatedAt,
		CancelRequestedAt:    s.CancelRequestedAt,
	}
	if s.EffectiveCancelDate != nil {
		view.EffectiveCancelDate = s.EffectiveCancelDate.UTC().Format(time.DateOnly)
	}
	return view
}
