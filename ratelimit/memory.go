package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/musewave/maestro/clock"
	"github.com/musewave/maestro/id"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is an in-process fixed-window limiter. A single mutex
// makes check-and-increment atomic. Suitable for single-process
// deployments and tests; distributed workers share windows through the
// Redis limiter instead.
type MemoryLimiter struct {
	width time.Duration
	clk   clock.Clock

	mu      sync.Mutex
	windows map[id.CredentialID]*window
}

// NewMemoryLimiter creates a limiter with the given window width.
// A nil clk uses the real clock.
func NewMemoryLimiter(width time.Duration, clk clock.Clock) *MemoryLimiter {
	if width <= 0 {
		width = time.Minute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryLimiter{
		width:   width,
		clk:     clk,
		windows: make(map[id.CredentialID]*window),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, credID id.CredentialID, limit int) (Decision, error) {
	now := l.clk.Now()
	start := now.Truncate(l.width)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[credID]
	if w == nil || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[credID] = w
	}

	d := Decision{ResetAt: start.Add(l.width)}
	if w.count >= limit {
		return d, nil
	}
	w.count++
	d.Allowed = true
	d.Remaining = limit - w.count
	return d, nil
}

// Sweep drops windows that ended before now, bounding map growth.
func (l *MemoryLimiter) Sweep() {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for credID, w := range l.windows {
		if now.Sub(w.start) >= l.width {
			delete(l.windows, credID)
		}
	}
}
