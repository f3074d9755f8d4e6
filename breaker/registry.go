package breaker

import (
	"sync"

	"github.com/musewave/maestro/clock"
)

// Registry holds one breaker per external engine. One breaker's state
// never affects another's.
type Registry struct {
	cfg Config
	clk clock.Clock

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry that builds breakers with the given
// default config. A nil clk uses the real clock.
func NewRegistry(cfg Config, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		cfg:      cfg,
		clk:      clk,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named engine, creating it on first use.
func (r *Registry) Get(engine string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[engine]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[engine]; ok {
		return b
	}
	b = New(engine, r.cfg, r.clk)
	r.breakers[engine] = b
	return b
}

// Snapshots returns the state of every breaker created so far.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
