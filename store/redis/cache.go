package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Cache)(nil)

// Cache stores results as JSON values under TTL'd keys. Redis expiry is
// the source of truth, so an expired entry is gone before anyone can
// read it.
type Cache struct {
	client redis.Cmdable
}

// NewCache creates a Redis-backed result cache. The caller owns the
// Redis client lifecycle.
func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// GetEntry returns the live entry for key, or maestro.ErrCacheMiss.
func (c *Cache) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, maestro.ErrCacheMiss
		}
		return nil, fmt.Errorf("maestro/redis: get cache entry: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("maestro/redis: decode cache entry: %w", err)
	}
	return &entry, nil
}

// SetEntry stores a result under key with the given TTL. A non-positive
// ttl stores the entry without expiry.
func (c *Cache) SetEntry(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	now := time.Now()
	entry := cache.Entry{
		Key:       key,
		Result:    result,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("maestro/redis: encode cache entry: %w", err)
	}

	var expiry time.Duration
	if ttl > 0 {
		expiry = ttl
	}
	if err := c.client.Set(ctx, cacheKey(key), data, expiry).Err(); err != nil {
		return fmt.Errorf("maestro/redis: set cache entry: %w", err)
	}
	return nil
}

// DeleteExpiredEntries is a no-op: Redis evicts expired keys itself.
func (c *Cache) DeleteExpiredEntries(_ context.Context) (int64, error) {
	return 0, nil
}
