package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the request
// when fewer than limit remain. Returns {allowed, count}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, ARGV[5])
	redis.call('EXPIRE', key, ttl)
	return {1, current + 1}
end
return {0, current}
`)

// RedisConfig configures the redis limiter
type RedisConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// RedisLimiter is a sliding window limiter stored in redis sorted sets
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a redis-backed limiter
func NewRedisLimiter(client *redis.Client, cfg RedisConfig) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "fieldledger:ratelimit:"
	}
	return &RedisLimiter{
		client: client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// Allow records a hit for key and reports whether it is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := l.now()
	ttl := int(l.window / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixNano(), now.Add(-l.window).UnixNano(), l.limit, ttl, uuid.NewString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("unexpected redis script result")
	}

	remaining := l.limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return &Info{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
		Allowed:   res[0] == 1,
	}, nil
}

// Reset clears the window for key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
