package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewRedisLimiter_InvalidConfig(t *testing.T) {
	client := &redis.Client{}
	tests := []struct {
		name    string
		client  *redis.Client
		cfg     RedisConfig
		wantErr string
	}{
		{"nil client", nil, RedisConfig{Limit: 1, Window: time.Minute}, "redis client is required"},
		{"zero limit", client, RedisConfig{Limit: 0, Window: time.Minute}, "limit must be greater than 0"},
		{"zero window", client, RedisConfig{Limit: 1}, "window must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisLimiter(tt.client, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedisLimiter_Allow(t *testing.T) {
	client, mr := setupTestRedis(t)
	l, err := NewRedisLimiter(client, RedisConfig{Limit: 2, Window: time.Minute})
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	info, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, info.Remaining)
	assert.Equal(t, 2, info.Limit)

	info, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)

	info, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, now.Add(time.Minute), info.ResetAt)

	info, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, info.Allowed, "keys are independent")

	assert.True(t, mr.Exists("fieldledger:ratelimit:10.0.0.1"))
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	client, _ := setupTestRedis(t)
	l, err := NewRedisLimiter(client, RedisConfig{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	info, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, info.Allowed)

	info, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, info.Allowed)

	now = now.Add(61 * time.Second)
	info, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRedisLimiter_Reset(t *testing.T) {
	client, mr := setupTestRedis(t)
	l, err := NewRedisLimiter(client, RedisConfig{Limit: 1, Window: time.Minute, Prefix: "rl:"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, mr.Exists("rl:k"))

	require.NoError(t, l.Reset(ctx, "k"))
	assert.False(t, mr.Exists("rl:k"))
}

func TestRedisLimiter_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	l, err := NewRedisLimiter(client, RedisConfig{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	mr.Close()
	_, err = l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLimiter_Allow(t *testing.T) {
	l, err := NewMemoryLimiter(MemoryConfig{Limit: 3, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "request %d", i)
		assert.Equal(t, 2-i, info.Remaining)
	}

	info, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.True(t, info.ResetAt.After(now))

	// one token refills every 20s
	now = now.Add(20 * time.Second)
	info, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, err := NewMemoryLimiter(MemoryConfig{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err = l.Allow(context.Background(), "old")
	require.NoError(t, err)
	now = now.Add(90 * time.Second)
	_, err = l.Allow(context.Background(), "new")
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	now = now.Add(40 * time.Second)
	l.sweep()
	assert.Equal(t, 1, l.Len())
}

func TestNewMemoryLimiter_InvalidConfig(t *testing.T) {
	_, err := NewMemoryLimiter(MemoryConfig{Window: time.Minute})
	assert.Error(t, err)
	_, err = NewMemoryLimiter(MemoryConfig{Limit: 1})
	assert.Error(t, err)
}

func TestInfo_RetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, (&Info{ResetAt: now.Add(30 * time.Second)}).RetryAfter(now))
	assert.Equal(t, 1, (&Info{ResetAt: now}).RetryAfter(now))
}
