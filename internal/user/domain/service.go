package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Authenticate(ctx context.Context, token string) (snowflake.ID, error)
	Get(ctx context.Context, id snowflake.ID) (*UserView, error)
}
