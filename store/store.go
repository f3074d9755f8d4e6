// Package store defines the aggregate persistence interface. Each
// subsystem (job, dlq, cache, auth) defines its own store interface; the
// composite Store composes them all. Backends: Postgres, Redis, and
// Memory.
package store

import (
	"context"

	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/cache"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/job"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	job.Store
	dlq.Store
	cache.Store
	auth.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
