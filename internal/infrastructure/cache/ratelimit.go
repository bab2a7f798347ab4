package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"blinkgate.backend/pkg/logger"
	"blinkgate.backend/pkg/redis"
)

// RateLimitResult carries enough state for the usecase layer to populate
// the 429 headers (X-Ratelimit-*, Retry-After).
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitCounter is a fixed-window per-wallet counter. A window is a
// single INCR+EXPIRE key rather than a sorted-set sliding log, trading
// boundary precision for one round trip per check — acceptable at hourly
// granularity.
type RateLimitCounter struct{}

// NewRateLimitCounter constructs a RateLimitCounter over the shared redis client.
func NewRateLimitCounter() *RateLimitCounter {
	return &RateLimitCounter{}
}

// Check increments the window counter for (bucket, wallet) and reports
// whether the request is within limit. If the counter store is unreachable
// the request proceeds best-effort, logged as rate_limit_bypass.
func (c *RateLimitCounter) Check(ctx context.Context, bucket, wallet string, limit int, window time.Duration) RateLimitResult {
	key := "ratelimit:" + bucket + ":" + wallet

	count, err := redis.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "rate_limit_bypass", zap.String("bucket", bucket), zap.String("wallet", wallet), zap.Error(err))
		return RateLimitResult{Allowed: true, Limit: limit, Remaining: limit}
	}

	if count == 1 {
		if err := redis.Expire(ctx, key, window); err != nil {
			logger.Warn(ctx, "rate_limit_bypass", zap.String("bucket", bucket), zap.Error(err))
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	ttl, err := redis.TTL(ctx, key)
	if err != nil || ttl < 0 {
		ttl = window
	}

	return RateLimitResult{
		Allowed:    int(count) <= limit,
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: ttl,
	}
}
