package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Tunnel is a reverse-proxy domain owned by a user.
type Tunnel struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID    snowflake.ID `gorm:"not null;index"`
	Domain    string       `gorm:"type:text;not null;uniqueIndex"`
	Enabled   bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (Tunnel) TableName() string { return "tunnels" }

var ErrTunnelNotFound = errors.New("tunnel_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tunnel *Tunnel) error
	FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*Tunnel, error)
}
