// Package ratelimit implements per-credential admission control using
// fixed time windows.
//
// The check and the increment are one atomic operation: a request is
// either denied, or admitted with the window counter already bumped.
// There is no separate record step to race against.
package ratelimit

import (
	"context"
	"time"

	"github.com/musewave/maestro/id"
)

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Remaining is the number of requests left in the current window
	// after this one.
	Remaining int
	// ResetAt is when the current window ends and the counter restarts.
	ResetAt time.Time
}

// Limiter performs atomic check-and-increment admission for a credential.
type Limiter interface {
	// Allow admits the request if fewer than limit requests landed in the
	// credential's current window, incrementing the counter in the same
	// operation. Within a window the counter never decreases; a new
	// window starts a fresh count.
	Allow(ctx context.Context, credID id.CredentialID, limit int) (Decision, error)
}
