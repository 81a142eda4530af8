package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, now *time.Time) Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "test:", Now: func() time.Time { return *now }}
}

func TestLimiterAllowSlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "checkout:10.0.0.1", window, max)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, max-(i+1), remaining)
		now = now.Add(100 * time.Millisecond)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "checkout:10.0.0.1", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
	require.Equal(t, time.Date(2024, 1, 1, 12, 0, 2, 0, time.UTC), reset)

	now = now.Add(window)
	allowed, _, _, err = limiter.Allow(ctx, "checkout:10.0.0.1", window, max)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterRejectionsDoNotConsumeBudget(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	for i := 0; i < 3; i++ {
		now = now.Add(200 * time.Millisecond)
		allowed, _, _, err = limiter.Allow(ctx, "k", time.Second, 1)
		require.NoError(t, err)
		require.False(t, allowed)
	}

	// Only the first hit was recorded, so the window frees up one second after it.
	now = time.Date(2024, 1, 1, 12, 0, 1, 1_000_000, time.UTC)
	allowed, _, _, err = limiter.Allow(ctx, "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	now := time.Now()
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "checkout:a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(ctx, "checkout:b", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "k", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}
