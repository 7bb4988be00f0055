package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/config"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  userdomain.Repository

	jwtSecret []byte
	tokenTTL  time.Duration
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   userdomain.Repository
	Config config.Config
}

func NewService(p ServiceParam) userdomain.Service {
	ttl := time.Duration(p.Config.AuthTokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("user.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		jwtSecret: []byte(p.Config.AuthJWTSecret),
		tokenTTL:  ttl,
	}
}

func (s *Service) Register(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, userdomain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, userdomain.ErrInvalidPassword
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, userdomain.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, req userdomain.LoginRequest) (*userdomain.AuthResult, error) {
	user, err := s.repo.FindByEmail(ctx, s.db, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, userdomain.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate validates a bearer token and returns the user it was issued to.
func (s *Service) Authenticate(ctx context.Context, token string) (snowflake.ID, error) {
	_ = ctx
	token = strings.TrimSpace(token)
	if token == "" || len(s.jwtSecret) == 0 {
		return 0, userdomain.ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, userdomain.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, userdomain.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := snowflake.ParseString(sub)
	if err != nil || id == 0 {
		return 0, userdomain.ErrInvalidToken
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*userdomain.UserView, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUserNotFound
	}
	view := userdomain.ToView(user)
	return &view, nil
}

func (s *Service) issue(user *userdomain.User) (*userdomain.AuthResult, error) {
	if len(s.jwtSecret) == 0 {
		return nil, errors.New("auth jwt secret is not configured")
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &userdomain.AuthResult{
		User:      userdomain.ToView(user),
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}
