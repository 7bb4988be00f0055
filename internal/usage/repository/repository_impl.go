package repository

import (
	"context"

	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) FindForUpdate(ctx context.Context, conn *gorm.DB, tunnelID snowflake.ID, year, month int) (*usagedomain.Consumption, error) {
	query := `SELECT id, tunnel_id, year, month, data_usage, reported_units, created_at, updated_at
		 FROM tunnel_consumptions
		 WHERE tunnel_id = ? AND year = ? AND month = ?`
	if db.SupportsRowLocks(conn) {
		query += ` FOR UPDATE`
	}

	var item usagedomain.Consumption
	if err := conn.WithContext(ctx).Raw(query, tunnelID, year, month).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, consumption *usagedomain.Consumption) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO tunnel_consumptions (
			id, tunnel_id, year, month, data_usage, reported_units, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		consumption.ID,
		consumption.TunnelID,
		consumption.Year,
		consumption.Month,
		consumption.DataUsage,
		consumption.ReportedUnits,
		consumption.CreatedAt,
		consumption.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, consumption *usagedomain.Consumption) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE tunnel_consumptions
		 SET data_usage = ?, reported_units = ?, updated_at = ?
		 WHERE id = ?`,
		consumption.DataUsage,
		consumption.ReportedUnits,
		consumption.UpdatedAt,
		consumption.ID,
	).Error
}
