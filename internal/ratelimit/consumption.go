package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const (
	keyConsumptionDomain = "consumption:domain:%s"
	keyConsumptionLock   = "consumption:lock:%s:%04d-%02d"
)

// ConsumptionLimiter throttles usage ingestion per tunnel domain and
// serializes ingestion for one tunnel period across instances.
// A nil limiter allows everything.
type ConsumptionLimiter struct {
	bucket *TokenBucket
	lease  periodLease
}

// NewConsumptionLimiter returns nil when rate limiting is disabled.
func NewConsumptionLimiter(lc fx.Lifecycle, cfg config.Config) (*ConsumptionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return NewConsumptionLimiterWithClient(client, limitCfg)
}

func NewConsumptionLimiterWithClient(client *redis.Client, cfg config.RateLimitConfig) (*ConsumptionLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	bucket, err := NewTokenBucket(client, cfg.ConsumptionDomainRate, cfg.ConsumptionDomainBurst)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.ConsumptionLockTTL) * time.Second
	if ttl <= 0 {
		return nil, errors.New("consumption lock ttl must be positive")
	}

	return &ConsumptionLimiter{
		bucket: bucket,
		lease:  periodLease{client: client, ttl: ttl},
	}, nil
}

func (l *ConsumptionLimiter) Enabled() bool {
	return l != nil
}

// AllowDomain takes one token from the domain's bucket.
func (l *ConsumptionLimiter) AllowDomain(ctx context.Context, domain string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyConsumptionDomain, strings.ToLower(strings.TrimSpace(domain))))
}

// TryLockPeriod returns ok=false when another request holds the period.
func (l *ConsumptionLimiter) TryLockPeriod(ctx context.Context, tunnelID snowflake.ID, year, month int) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.lease.acquire(ctx, tunnelID, year, month)
}

func (l *ConsumptionLimiter) ReleasePeriod(ctx context.Context, tunnelID snowflake.ID, year, month int, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.lease.release(ctx, tunnelID, year, month, token)
}
