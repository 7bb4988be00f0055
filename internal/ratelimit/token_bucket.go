package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash; ARGV rate per second, burst, ttl ms.
// Returns {allowed, tokens}; tokens is a string so the fraction survives the
// Lua to RESP integer conversion.
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + ((now - last) / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, tostring(tokens)}
`)

// TokenBucket is a redis-side token bucket shared by every instance.
type TokenBucket struct {
	client *redis.Client
	rate   float64
	burst  int
	ttl    time.Duration
}

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client, rate float64, burst int) (*TokenBucket, error) {
	if client == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("token bucket rate and burst must be positive")
	}
	// Idle buckets expire once they would have refilled twice over.
	ttl := time.Duration(math.Max(1, math.Ceil(2*float64(burst)/rate))) * time.Second
	return &TokenBucket{client: client, rate: rate, burst: burst, ttl: ttl}, nil
}

func (b *TokenBucket) Take(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("token bucket key is empty")
	}
	res, err := takeToken.Run(ctx, b.client, []string{key}, b.rate, b.burst, b.ttl.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, errors.New("unexpected token bucket reply")
	}

	allowed, _ := res[0].(int64)
	tokensText, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Allowed: allowed == 1, Remaining: int(tokens)}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - tokens) / b.rate * float64(time.Second))
	}
	return d, nil
}
