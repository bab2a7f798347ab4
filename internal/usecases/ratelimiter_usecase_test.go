package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/infrastructure/cache"
	pkgredis "blinkgate.backend/pkg/redis"
)

func newRateLimiterMiniredis(t *testing.T) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	pkgredis.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRateLimiter_ChargeAndRewardBucketsAreIndependent(t *testing.T) {
	newRateLimiterMiniredis(t)
	limiter := NewRateLimiter(cache.NewRateLimitCounter(), time.Hour, 1, time.Hour, 1)

	require.True(t, limiter.CheckCharge(context.Background(), "wallet-a").Allowed)
	require.False(t, limiter.CheckCharge(context.Background(), "wallet-a").Allowed)

	// reward bucket for the same wallet is untouched by the charge bucket
	require.True(t, limiter.CheckReward(context.Background(), "wallet-a").Allowed)
}

func TestRateLimiter_DifferentWalletsDoNotShareBudget(t *testing.T) {
	newRateLimiterMiniredis(t)
	limiter := NewRateLimiter(cache.NewRateLimitCounter(), time.Hour, 1, time.Hour, 1)

	require.True(t, limiter.CheckCharge(context.Background(), "wallet-a").Allowed)
	require.True(t, limiter.CheckCharge(context.Background(), "wallet-b").Allowed)
}
