package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRateLimiterAllowsUpToCap(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, 15*time.Minute, 3, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := limiter.Allow(ctx, "10.0.0.1", "+15551234567")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}

	result := limiter.Allow(ctx, "10.0.0.1", "+15551234567")
	assert.False(t, result.Allowed)
	assert.Equal(t, 4, result.Count)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestRateLimiterKeysByOriginAndSender(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, 15*time.Minute, 1, nil)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)
	assert.False(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)

	// A different sender from the same origin has its own budget.
	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "+15559999999").Allowed)
	// Same sender via a different origin too.
	assert.True(t, limiter.Allow(ctx, "10.0.0.2", "+15551234567").Allowed)
}

func TestRateLimiterWindowExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, time.Minute, 1, nil)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)
	assert.False(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)

	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)
}

func TestRateLimiterReArmsCounterWithoutExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, time.Minute, 1, nil)
	ctx := context.Background()

	// A counter that lost its EXPIRE would otherwise throttle this
	// pair forever once over the cap.
	require.NoError(t, mr.Set("ratelimit:10.0.0.1:+15551234567", "5"))
	require.Equal(t, time.Duration(0), mr.TTL("ratelimit:10.0.0.1:+15551234567"))

	result := limiter.Allow(ctx, "10.0.0.1", "+15551234567")
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Minute, result.RetryAfter)

	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "+15551234567").Allowed)
}

func TestRateLimiterFailsOpenWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, time.Minute, 1, nil)
	mr.Close()

	result := limiter.Allow(context.Background(), "10.0.0.1", "+15551234567")
	assert.True(t, result.Allowed)
}
