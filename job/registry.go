package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ProgressFunc reports handler progress. pct is 0-100; stage names the
// pipeline phase being worked (e.g. "composing", "rendering").
type ProgressFunc func(pct float64, stage string)

// HandlerFunc is a type-erased generation handler. It receives the raw
// params payload and a progress callback, and returns the raw result.
// The typed Definition[T, R] is converted to a HandlerFunc at
// registration time by closing over JSON marshaling and the typed handler.
type HandlerFunc func(ctx context.Context, params []byte, progress ProgressFunc) (json.RawMessage, error)

// Registry maps job types to type-erased handlers and the external engine
// each handler depends on. It is safe for concurrent use. Handlers
// register themselves at startup; the dispatcher never imports handler
// internals.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	engines  map[string]string
	defaults map[string]Options
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		engines:  make(map[string]string),
		defaults: make(map[string]Options),
	}
}

// RegisterDefinition registers a typed job definition. The generic
// handler is wrapped in a closure that JSON-unmarshals params into T and
// marshals the typed result back to raw JSON.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T, R any](r *Registry, def *Definition[T, R]) {
	handler := func(ctx context.Context, params []byte, progress ProgressFunc) (json.RawMessage, error) {
		var t T
		if len(params) > 0 {
			if err := json.Unmarshal(params, &t); err != nil {
				return nil, fmt.Errorf("unmarshal params for job type %q: %w", def.Type, err)
			}
		}
		res, err := def.Handler(ctx, t, progress)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal result for job type %q: %w", def.Type, err)
		}
		return raw, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Type] = handler
	r.engines[def.Type] = def.Engine
	r.defaults[def.Type] = def.Opts
}

// Get returns the handler for the given job type.
// Returns false if no handler is registered.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// DefaultsFor returns the enqueue defaults the job type registered
// with. Returns false for unknown types.
func (r *Registry) DefaultsFor(jobType string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.defaults[jobType]
	return o, ok
}

// EngineOf returns the external engine name a job type's handler calls,
// used to select the protecting circuit breaker. Empty if the handler has
// no external engine.
func (r *Registry) EngineOf(jobType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[jobType]
}

// Types returns all registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
