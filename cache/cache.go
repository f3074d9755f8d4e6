// Package cache defines the content-addressable result cache: completed
// job results keyed by a hash of the normalized request params.
//
// Lookup happens before enqueue — a hit short-circuits the whole
// queue/dispatch path — and population happens after successful
// completion. Concurrent identical requests that both miss before either
// completes will both execute; closing that stampede window would need a
// per-key in-flight lock, which this baseline does not take on.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached result.
type Entry struct {
	Key       string          `json:"key"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the persistence contract for cached results. Implementations
// must never return an expired entry: Get on a stale key behaves exactly
// like a miss.
type Store interface {
	// GetEntry returns the live entry for key, or maestro.ErrCacheMiss.
	GetEntry(ctx context.Context, key string) (*Entry, error)

	// SetEntry stores a result under key with the given TTL, replacing any
	// previous entry.
	SetEntry(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error

	// DeleteExpiredEntries removes entries past their TTL and returns the
	// number removed. Used by retention.
	DeleteExpiredEntries(ctx context.Context) (int64, error)
}
