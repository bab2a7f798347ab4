package cache

import (
	"context"
	"encoding/json"
	"time"

	"blinkgate.backend/pkg/redis"
)

// OfferCacheTTL is the read-through TTL for offer lookups.
const OfferCacheTTL = 5 * time.Minute

// OfferCache is the read-through cache fronting offer lookups.
type OfferCache struct{}

// NewOfferCache constructs an OfferCache over the shared redis client.
func NewOfferCache() *OfferCache {
	return &OfferCache{}
}

func offerCacheKey(key string) string { return "offer:" + key }

// GetOrFetch returns the cached value for key, or calls fetch on a miss and
// populates the cache with the result before returning it.
func (c *OfferCache) GetOrFetch(ctx context.Context, key string, out interface{}, fetch func() (interface{}, error)) error {
	raw, err := redis.Get(ctx, offerCacheKey(key))
	if err == nil && raw != "" {
		return json.Unmarshal([]byte(raw), out)
	}

	fetched, err := fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(fetched)
	if err != nil {
		return err
	}
	if setErr := redis.Set(ctx, offerCacheKey(key), payload, OfferCacheTTL); setErr != nil {
		// best-effort: a cache write failure must not fail the read path
		_ = setErr
	}

	return json.Unmarshal(payload, out)
}

// Invalidate evicts the cached entry for key, called after a run executes
// against the offer so the next lookup observes fresh counters/status.
func (c *OfferCache) Invalidate(ctx context.Context, key string) error {
	return redis.Del(ctx, offerCacheKey(key))
}
