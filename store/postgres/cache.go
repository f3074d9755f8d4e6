package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/cache"
)

// GetEntry returns the live cache entry for key. The expiry check is in
// the query itself, so a stale row is a miss even before retention has
// swept it.
func (s *Store) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	var (
		entry     cache.Entry
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT key, result, created_at, expires_at FROM maestro_cache
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		key,
	).Scan(&entry.Key, &entry.Result, &entry.CreatedAt, &expiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrCacheMiss
		}
		return nil, fmt.Errorf("maestro/postgres: get cache entry: %w", err)
	}
	if expiresAt != nil {
		entry.ExpiresAt = *expiresAt
	}
	return &entry, nil
}

// SetEntry stores a result under key, replacing any previous entry.
// A non-positive ttl stores the entry without expiry.
func (s *Store) SetEntry(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO maestro_cache (key, result, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE
		SET result = EXCLUDED.result,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at`,
		key, result, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: set cache entry: %w", err)
	}
	return nil
}

// DeleteExpiredEntries removes cache rows past their TTL.
func (s *Store) DeleteExpiredEntries(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM maestro_cache WHERE expires_at IS NOT NULL AND expires_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("maestro/postgres: delete expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
