package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindForUpdate(ctx context.Context, db *gorm.DB, tunnelID snowflake.ID, year, month int) (*Consumption, error)
	Insert(ctx context.Context, db *gorm.DB, consumption *Consumption) error
	Update(ctx context.Context, db *gorm.DB, consumption *Consumption) error
}
