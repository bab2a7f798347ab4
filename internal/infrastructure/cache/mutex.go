package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/pkg/logger"
	"blinkgate.backend/pkg/redis"
)

// releaseScript is a compare-and-delete: only the holder that wrote the
// token may release the lease, so an expired holder cannot delete its
// successor's lease.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// MutexService is a distributed mutex backed by a conditional
// set-if-absent lease with a bounded-retry acquire and a token-gated
// compare-and-delete release.
type MutexService struct{}

// NewMutexService constructs a MutexService over the shared pkg/redis client.
func NewMutexService() *MutexService {
	return &MutexService{}
}

func leaseKey(key string) string { return "mutex:" + key }

// WithLock acquires a lease on key and runs f while holding it. If the
// backing store is unreachable the lock degrades to best-effort: the
// attempt is logged and f runs anyway, since double-spend is still guarded
// by the database unique constraint and row lock.
func (m *MutexService) WithLock(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration, f func(ctx context.Context) error) error {
	token := uuid.New().String()
	lk := leaseKey(key)

	acquired := false
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		ok, err := redis.SetNX(ctx, lk, token, ttl)
		if err != nil {
			lastErr = err
			break
		}
		if ok {
			acquired = true
			break
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if lastErr != nil {
		logger.Warn(ctx, "mutex store unreachable, degrading to best-effort", zap.String("key", key), zap.Error(lastErr))
		return f(ctx)
	}

	if !acquired {
		return domainerrors.ErrContention
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := redis.Eval(releaseCtx, releaseScript, []string{lk}, token); err != nil {
			logger.Warn(ctx, "mutex release failed, relying on TTL", zap.String("key", key), zap.Error(err))
		}
	}()

	return f(ctx)
}
