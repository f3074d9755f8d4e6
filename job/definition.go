package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the params type and R the result type (both JSON-serializable).
type Definition[T, R any] struct {
	// Type is the unique identifier for this job type.
	Type string

	// Engine names the external engine the handler calls. Calls are routed
	// through that engine's circuit breaker. Empty means unprotected.
	Engine string

	// Handler processes the job params, reporting progress as it goes.
	Handler func(ctx context.Context, params T, progress ProgressFunc) (R, error)

	// Opts configures attempts, priority, and timeout defaults.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T, R any](jobType, engine string, handler func(ctx context.Context, params T, progress ProgressFunc) (R, error), opts ...Option) *Definition[T, R] {
	def := &Definition[T, R]{
		Type:    jobType,
		Engine:  engine,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
