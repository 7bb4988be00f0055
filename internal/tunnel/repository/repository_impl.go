package repository

import (
	"context"
	"strings"

	tunneldomain "github.com/OnnaSoft/real-sync/internal/tunnel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tunneldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tunnel *tunneldomain.Tunnel) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tunnels (id, user_id, domain, enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tunnel.ID,
		tunnel.UserID,
		NormalizeDomain(tunnel.Domain),
		tunnel.Enabled,
		tunnel.CreatedAt,
		tunnel.UpdatedAt,
	).Error
}

func (r *repo) FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*tunneldomain.Tunnel, error) {
	var tunnel tunneldomain.Tunnel
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, domain, enabled, created_at, updated_at FROM tunnels WHERE domain = ?`,
		NormalizeDomain(domain),
	).Scan(&tunnel).Error
	if err != nil {
		return nil, err
	}
	if tunnel.ID == 0 {
		return nil, nil
	}
	return &tunnel, nil
}

// NormalizeDomain lower-cases the host and drops a trailing dot.
func NormalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
