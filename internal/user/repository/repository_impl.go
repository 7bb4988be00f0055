package repository

import (
	"context"
	"strings"
	"time"

	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

const userColumns = `id, email, name, password_hash, stripe_customer_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, user *userdomain.User) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.StripeCustomerID,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	return r.findOne(ctx, conn, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	if db.SupportsRowLocks(conn) {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, conn, query, id)
}

func (r *repo) FindByEmail(ctx context.Context, conn *gorm.DB, email string) (*userdomain.User, error) {
	return r.findOne(ctx, conn,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
}

func (r *repo) UpdateStripeCustomerID(ctx context.Context, conn *gorm.DB, id snowflake.ID, customerID string) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*userdomain.User, error) {
	var user userdomain.User
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&user).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}
