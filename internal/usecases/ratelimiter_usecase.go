package usecases

import (
	"context"
	"time"

	"blinkgate.backend/internal/infrastructure/cache"
)

// Rate buckets: 10/h on charge calls, 5/h on reward calls by default,
// counted separately per wallet so a caller cannot spend one mode's
// budget against the other.
const (
	rateBucketCharge = "charge"
	rateBucketReward = "reward"
)

// RateLimiter wraps the fixed-window counter with the two named buckets
// the orchestrator checks before doing any paid work.
type RateLimiter struct {
	counter           *cache.RateLimitCounter
	chargeWindow      time.Duration
	chargeMaxRequests int
	rewardWindow      time.Duration
	rewardMaxRequests int
}

// NewRateLimiter constructs a RateLimiter over the shared counter.
func NewRateLimiter(counter *cache.RateLimitCounter, chargeWindow time.Duration, chargeMax int, rewardWindow time.Duration, rewardMax int) *RateLimiter {
	return &RateLimiter{
		counter:           counter,
		chargeWindow:      chargeWindow,
		chargeMaxRequests: chargeMax,
		rewardWindow:      rewardWindow,
		rewardMaxRequests: rewardMax,
	}
}

// CheckCharge enforces the charge-mode bucket for wallet.
func (r *RateLimiter) CheckCharge(ctx context.Context, wallet string) cache.RateLimitResult {
	return r.counter.Check(ctx, rateBucketCharge, wallet, r.chargeMaxRequests, r.chargeWindow)
}

// CheckReward enforces the reward-mode bucket for wallet.
func (r *RateLimiter) CheckReward(ctx context.Context, wallet string) cache.RateLimitResult {
	return r.counter.Check(ctx, rateBucketReward, wallet, r.rewardMaxRequests, r.rewardWindow)
}
