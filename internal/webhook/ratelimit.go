package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/booking-engine/pkg/logging"
)

// RateLimiter enforces a sliding window per (origin, sender) pair using
// redis counters. Redis being down fails open: a throttling outage must
// not take the whole webhook path with it.
type RateLimiter struct {
	redis  *redis.Client
	window time.Duration
	max    int
	logger *logging.Logger
}

// RateLimitResult reports one admission decision.
type RateLimitResult struct {
	Allowed    bool
	Count      int
	Max        int
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter with the given window and cap.
func NewRateLimiter(redisClient *redis.Client, window time.Duration, max int, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if max <= 0 {
		max = 100
	}
	return &RateLimiter{
		redis:  redisClient,
		window: window,
		max:    max,
		logger: logger.WithComponent("ratelimit"),
	}
}

// Allow admits or rejects one inbound request.
func (l *RateLimiter) Allow(ctx context.Context, origin, sender string) *RateLimitResult {
	key := fmt.Sprintf("ratelimit:%s:%s", origin, sender)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err, "key", key)
		return &RateLimitResult{Allowed: true, Max: l.max}
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Error("failed to arm rate limit window", "error", err, "key", key)
		}
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	switch {
	case err != nil:
		ttl = l.window
	case ttl < 0:
		// The counter has no expiry, so an earlier EXPIRE was lost.
		// Re-arm it or the pair stays throttled forever once over the
		// cap.
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Error("failed to re-arm rate limit window", "error", err, "key", key)
		}
		ttl = l.window
	}

	result := &RateLimitResult{
		Allowed:    int(count) <= l.max,
		Count:      int(count),
		Max:        l.max,
		RetryAfter: ttl,
	}
	if !result.Allowed {
		l.logger.Warn("rate limit exceeded",
			"origin", origin,
			"sender", sender,
			"count", count,
			"max", l.max,
		)
	}
	return result
}
