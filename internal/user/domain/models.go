package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type User struct {
	ID               snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Email            string       `gorm:"type:text;not null;uniqueIndex"`
	Name             string       `gorm:"type:text"`
	PasswordHash     string       `gorm:"type:text;not null"`
	StripeCustomerID string       `gorm:"type:text"`
	CreatedAt        time.Time    `gorm:"not null"`
	UpdatedAt        time.Time    `gorm:"not null"`
}

func (User) TableName() string { return "users" }

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type AuthResult struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func ToView(u *User) UserView {
	return UserView{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
	}
}
