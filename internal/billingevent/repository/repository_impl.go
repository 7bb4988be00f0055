package repository

import (
	"context"

	"github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, conn *gorm.DB, provider, providerEventID string) (*domain.BillingEvent, error) {
	var item domain.BillingEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at
		 FROM billing_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, conn *gorm.DB, event *domain.BillingEvent) (bool, error) {
	query := `INSERT INTO billing_events (
			id, provider, provider_event_id, event_type, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`
	if conn.Dialector != nil && conn.Dialector.Name() == "mysql" {
		query = `INSERT IGNORE INTO billing_events (
			id, provider, provider_event_id, event_type, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?)`
	}

	res := conn.WithContext(ctx).Exec(
		query,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
