package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the key only while it still carries the caller's token, so an
// expired lease taken over by another request is left alone.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// periodLease is a SETNX lease on one tunnel's consumption row for a month.
type periodLease struct {
	client *redis.Client
	ttl    time.Duration
}

func periodKey(tunnelID snowflake.ID, year, month int) string {
	return fmt.Sprintf(keyConsumptionLock, tunnelID, year, month)
}

func (p periodLease) acquire(ctx context.Context, tunnelID snowflake.ID, year, month int) (string, bool, error) {
	token := uuid.NewString()
	ok, err := p.client.SetNX(ctx, periodKey(tunnelID, year, month), token, p.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (p periodLease) release(ctx context.Context, tunnelID snowflake.ID, year, month int, token string) error {
	if token == "" {
		return nil
	}
	return releaseLease.Run(ctx, p.client, []string{periodKey(tunnelID, year, month)}, token).Err()
}
