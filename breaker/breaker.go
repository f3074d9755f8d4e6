// Package breaker implements a circuit breaker guarding calls to external
// generation engines.
//
// Each engine gets its own independent breaker. While a breaker is open,
// calls fail immediately with maestro.ErrCircuitOpen without invoking the
// wrapped function, so a struggling engine is not hammered by every
// queued job at once. Breaker counters are per-process; distributed
// workers each trip independently.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/clock"
)

// State is the breaker's position in its state machine.
type State int

const (
	// Closed means calls flow through normally.
	Closed State = iota
	// Open means calls fail fast without invoking the wrapped function.
	Open
	// HalfOpen means a limited number of trial calls probe for recovery.
	HalfOpen
)

// String returns the state name in upper snake case.
func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a single breaker.
type Config struct {
	// FailureThreshold trips the breaker after this many consecutive
	// failures, regardless of rate.
	FailureThreshold int

	// FailureRate trips the breaker when the failure fraction over the
	// rolling window reaches this value (0..1), provided at least
	// MinSamples calls landed in the window.
	FailureRate float64

	// MinSamples is the minimum number of calls in the window before
	// FailureRate is consulted. Prevents one early failure from tripping
	// an idle breaker.
	MinSamples int

	// Window is the rolling accounting window.
	Window time.Duration

	// Buckets subdivides the window; old buckets roll off whole.
	Buckets int

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int
}

// DefaultConfig returns the breaker tuning used when none is provided.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureRate:      0.5,
		MinSamples:       10,
		Window:           30 * time.Second,
		Buckets:          10,
		ResetTimeout:     15 * time.Second,
		SuccessThreshold: 2,
	}
}

type bucket struct {
	start     time.Time
	successes int
	failures  int
}

// Breaker is a single circuit breaker instance. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	clk  clock.Clock

	mu       sync.Mutex
	state    State
	buckets  []bucket
	consec   int // consecutive failures while closed
	openedAt time.Time
	probing  bool // a half-open trial is in flight
	trials   int  // consecutive half-open successes
}

// New creates a breaker for the named engine with the given config.
// A nil clk uses the real clock.
func New(name string, cfg Config, clk clock.Clock) *Breaker {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = 1
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		clk:     clk,
		state:   Closed,
		buckets: make([]bucket, 0, cfg.Buckets),
	}
}

// Name returns the engine this breaker protects.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for reset-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.clk.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn through the breaker. While open it returns
// maestro.ErrCircuitOpen without calling fn. In half-open state a single
// trial call is admitted at a time; concurrent callers fail fast until
// the trial resolves.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		// The caller abandoned the attempt; that says nothing about
		// engine health.
		b.abandon()
		return err
	}
	b.record(err == nil)
	return err
}

// abandon releases an admitted call without counting its outcome.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// allow decides whether a call may proceed, transitioning Open→HalfOpen
// when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.clk.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return maestro.ErrCircuitOpen
		}
		b.state = HalfOpen
		b.trials = 0
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return maestro.ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// record accounts the outcome of a call admitted by allow.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if !success {
			b.trip(now)
			return
		}
		b.trials++
		if b.trials >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consec = 0
			b.buckets = b.buckets[:0]
		}
		return

	case Closed:
		b.bucketAt(now).add(success)
		if success {
			b.consec = 0
			return
		}
		b.consec++
		if b.consec >= b.cfg.FailureThreshold {
			b.trip(now)
			return
		}
		succ, fail := b.windowCounts(now)
		total := succ + fail
		if total >= b.cfg.MinSamples && float64(fail)/float64(total) >= b.cfg.FailureRate {
			b.trip(now)
		}

	case Open:
		// A call admitted before the trip landed late. Ignore.
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = Open
	b.openedAt = now
	b.consec = 0
	b.probing = false
	b.buckets = b.buckets[:0]
}

func (bk *bucket) add(success bool) {
	if success {
		bk.successes++
	} else {
		bk.failures++
	}
}

// bucketAt returns the bucket covering now, appending one if needed and
// dropping buckets that rolled out of the window.
func (b *Breaker) bucketAt(now time.Time) *bucket {
	width := b.cfg.Window / time.Duration(b.cfg.Buckets)
	if width <= 0 {
		width = time.Second
	}
	start := now.Truncate(width)

	b.evict(now)
	if n := len(b.buckets); n > 0 && b.buckets[n-1].start.Equal(start) {
		return &b.buckets[n-1]
	}
	b.buckets = append(b.buckets, bucket{start: start})
	return &b.buckets[len(b.buckets)-1]
}

func (b *Breaker) evict(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.buckets) && !b.buckets[i].start.After(cutoff) {
		i++
	}
	if i > 0 {
		b.buckets = append(b.buckets[:0], b.buckets[i:]...)
	}
}

func (b *Breaker) windowCounts(now time.Time) (successes, failures int) {
	b.evict(now)
	for _, bk := range b.buckets {
		successes += bk.successes
		failures += bk.failures
	}
	return successes, failures
}

// Snapshot reports the breaker's state for stats endpoints.
type Snapshot struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	OpenedAt  time.Time `json:"openedAt,omitzero"`
}

// Snapshot returns the breaker's current counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	succ, fail := b.windowCounts(b.clk.Now())
	return Snapshot{
		Name:      b.name,
		State:     b.state.String(),
		Successes: succ,
		Failures:  fail,
		OpenedAt:  b.openedAt,
	}
}
