package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "securesend:auth"), mr
}

func exerciseLimiter(t *testing.T, l Limiter) {
	ctx := context.Background()
	window := 15 * time.Minute
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		res, err := l.Allow(ctx, "203.0.113.7", 10, window, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i+1)
		require.Equal(t, 10-(i+1), res.Remaining)
	}

	res, err := l.Allow(ctx, "203.0.113.7", 10, window, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, now.Add(window), res.Reset)

	res, err = l.Allow(ctx, "198.51.100.1", 10, window, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.Allowed, "keys are independent")

	res, err = l.Allow(ctx, "203.0.113.7", 10, window, now.Add(window))
	require.NoError(t, err)
	require.True(t, res.Allowed, "next window starts fresh")
}

func TestMemoryLimiter(t *testing.T) {
	exerciseLimiter(t, NewMemoryLimiter())
}

func TestRedisLimiter(t *testing.T) {
	l, _ := newRedisLimiter(t)
	exerciseLimiter(t, l)
}

func TestRedisLimiter_KeyExpires(t *testing.T) {
	l, mr := newRedisLimiter(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := l.Allow(context.Background(), "10.0.0.1", 1, time.Minute, now)
	require.NoError(t, err)

	key := l.buildKey("10.0.0.1", windowStart(now, time.Minute))
	require.True(t, mr.Exists(key))
	require.Equal(t, 61*time.Second, mr.TTL(key))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newRedisLimiter(t)
	mr.Close()

	_, err := l.Allow(context.Background(), "10.0.0.1", 5, time.Minute, time.Now())
	require.Error(t, err)
}

func TestLimiter_DisabledLimit(t *testing.T) {
	res, err := NewMemoryLimiter().Allow(context.Background(), "k", 0, time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
