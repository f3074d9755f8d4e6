package maestro

import (
	"context"
	"log/slog"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator. It
// covers lifecycle operations only; the full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for extension lifecycle events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for job processing. Create one
// with New() and functional options, then use engine.Build to wire the
// subsystems (worker pool, breakers, cache, rate limiter, broker) on top.
type Orchestrator struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions hookEmitter
	pool       poolRunner

	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetPool sets the worker pool (called by the engine layer).
func (o *Orchestrator) SetPool(p poolRunner) { o.pool = p }

// SetExtensions sets the extension emitter (called by the engine layer).
func (o *Orchestrator) SetExtensions(e hookEmitter) { o.extensions = e }

// Start begins job processing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.pool == nil {
		return ErrNoStore
	}
	if err := o.pool.Start(ctx); err != nil {
		return err
	}
	o.started = true
	return nil
}

// Stop gracefully shuts down the orchestrator.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.pool != nil && o.started {
		if err := o.pool.Stop(ctx); err != nil {
			o.logger.Error("pool stop error", "error", err)
		}
	}
	if o.extensions != nil {
		o.extensions.EmitShutdown(ctx)
	}
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent job processors.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Concurrency = n
		return nil
	}
}

// WithTypes restricts the orchestrator to the given job types.
func WithTypes(types []string) Option {
	return func(o *Orchestrator) error {
		o.config.Types = types
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) error {
		o.config = c
		return nil
	}
}
