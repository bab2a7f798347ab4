package cache

import (
	"context"
	"encoding/json"
	"time"

	"blinkgate.backend/pkg/redis"
)

// IdempotencyTTL is the retention window for cached successful responses.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyCache is the at-most-once response cache. Keys and
// values are opaque to the proxy: it stores successful bodies under both
// the payment identifier and an optional client idempotency key.
type IdempotencyCache struct{}

// NewIdempotencyCache constructs an IdempotencyCache over the shared redis client.
func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{}
}

func idempotencyKey(key string) string { return "idempotent:" + key }

// SetIdempotent stores value (JSON-marshaled) under key with the given TTL.
func (c *IdempotencyCache) SetIdempotent(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return redis.Set(ctx, idempotencyKey(key), payload, ttl)
}

// GetIdempotent reads the cached body for key, unmarshaling into out.
// Returns found=false on a cache miss.
func (c *IdempotencyCache) GetIdempotent(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := redis.Get(ctx, idempotencyKey(key))
	if err != nil {
		return false, nil //nolint:nilerr // miss and backend error are both "not found" to the caller
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}
