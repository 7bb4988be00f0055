package ratelimit

import (
	"context"
	"testing"

	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, burst int) (*ConsumptionLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewConsumptionLimiterWithClient(client, config.RateLimitConfig{
		Enabled:                true,
		ConsumptionDomainRate:  0.001,
		ConsumptionDomainBurst: burst,
		ConsumptionLockTTL:     30,
	})
	require.NoError(t, err)
	return limiter, mr
}

func TestAllowDomainExhaustsBurst(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowDomain(ctx, "app.example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.AllowDomain(ctx, "APP.example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	res, err = limiter.AllowDomain(ctx, "other.example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTryLockPeriod(t *testing.T) {
	limiter, mr := newTestLimiter(t, 5)
	ctx := context.Background()
	tunnelID := snowflake.ID(42)

	token, ok, err := limiter.TryLockPeriod(ctx, tunnelID, 2024, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("consumption:lock:42:2024-03"))

	_, ok, err = limiter.TryLockPeriod(ctx, tunnelID, 2024, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = limiter.TryLockPeriod(ctx, tunnelID, 2024, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.ReleasePeriod(ctx, tunnelID, 2024, 3, "someone-else"))
	assert.True(t, mr.Exists("consumption:lock:42:2024-03"))

	require.NoError(t, limiter.ReleasePeriod(ctx, tunnelID, 2024, 3, token))
	assert.False(t, mr.Exists("consumption:lock:42:2024-03"))
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *ConsumptionLimiter
	ctx := context.Background()

	res, err := limiter.AllowDomain(ctx, "app.example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, ok, err := limiter.TryLockPeriod(ctx, 1, 2024, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleasePeriod(ctx, 1, 2024, 1, ""))
}

func TestDisabledLimiterIsNil(t *testing.T) {
	limiter, err := NewConsumptionLimiter(nil, config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
}

func TestLimiterRejectsInvalidConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewConsumptionLimiterWithClient(client, config.RateLimitConfig{ConsumptionDomainRate: 1, ConsumptionDomainBurst: 1})
	assert.Error(t, err)
	_, err = NewConsumptionLimiterWithClient(client, config.RateLimitConfig{ConsumptionLockTTL: 5})
	assert.Error(t, err)
}
