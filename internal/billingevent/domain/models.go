package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is one processed provider webhook delivery.
type BillingEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_billing_event_provider_event,priority:1"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_billing_event_provider_event,priority:2"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

const ProviderStripe = "stripe"

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeReplayed  Outcome = "replayed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Result reports what happened to a webhook delivery.
type Result struct {
	EventID   string
	EventType string
	Outcome   Outcome
}
