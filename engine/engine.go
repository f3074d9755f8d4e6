// Package engine wires all Maestro subsystems together. It creates the
// extension registry, handler registry, middleware chain, circuit
// breakers, result cache, rate limiter, progress broker, and worker
// pool, and provides the Register/Enqueue/Status/Cancel operations.
//
// This package exists to break the import cycle: the root maestro
// package defines Entity (imported by job, dlq, auth, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/backoff"
	"github.com/musewave/maestro/breaker"
	"github.com/musewave/maestro/cache"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/ext"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
	mw "github.com/musewave/maestro/middleware"
	"github.com/musewave/maestro/queue"
	"github.com/musewave/maestro/ratelimit"
	"github.com/musewave/maestro/stream"
	"github.com/musewave/maestro/worker"
)

// Engine wraps an Orchestrator with typed subsystem access.
// Use Build() to create one.
type Engine struct {
	o          *maestro.Orchestrator
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	cacheStore cache.Store
	credStore  auth.Store
	dlqService *dlq.Service
	limiter    ratelimit.Limiter
	breakers   *breaker.Registry
	broker     *stream.Broker
	policy     backoff.Policy
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	brkCfg    breaker.Config
	brkCfgSet bool
	cacheTTL  time.Duration

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff policy for the engine.
// If not set, backoff.DefaultPolicy() (capped exponential) is used.
func WithBackoff(p backoff.Policy) Option {
	return func(eng *Engine) {
		eng.policy = p
	}
}

// WithRateLimiter sets the admission rate limiter. If not set, an
// in-process fixed-window limiter with a one-minute window is used.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(eng *Engine) {
		eng.limiter = l
	}
}

// WithBreakerConfig sets the tuning applied to every per-engine circuit
// breaker.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(eng *Engine) {
		eng.brkCfg = cfg
		eng.brkCfgSet = true
	}
}

// WithCacheStore overrides the result cache backend, e.g. Redis in
// front of a durable Postgres store.
func WithCacheStore(cs cache.Store) Option {
	return func(eng *Engine) { eng.cacheStore = cs }
}

// WithCacheTTL sets how long successful results stay in the result
// cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(eng *Engine) {
		eng.cacheTTL = ttl
	}
}

// WithQueueConfig registers per-type rate limiting and concurrency
// configurations. Types not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics middleware uses this provider instead of the
// global one. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Orchestrator.
// The Orchestrator's store must implement the job, dlq, cache, and
// credential store interfaces (store.Store embeds all four).
func Build(o *maestro.Orchestrator, opts ...Option) (*Engine, error) {
	logger := o.Logger()
	st := o.Store()

	if st == nil {
		return nil, maestro.ErrNoStore
	}

	js, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("maestro: store does not implement job.Store")
	}
	ds, ok := st.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("maestro: store does not implement dlq.Store")
	}
	cs, ok := st.(cache.Store)
	if !ok {
		return nil, fmt.Errorf("maestro: store does not implement cache.Store")
	}
	as, ok := st.(auth.Store)
	if !ok {
		return nil, fmt.Errorf("maestro: store does not implement auth.Store")
	}

	eng := &Engine{
		o:          o,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		jobStore:   js,
		cacheStore: cs,
		credStore:  as,
		cacheTTL:   worker.DefaultCacheTTL,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.policy == nil {
		eng.policy = backoff.DefaultPolicy()
	}
	if eng.limiter == nil {
		eng.limiter = ratelimit.NewMemoryLimiter(time.Minute, nil)
	}
	if !eng.brkCfgSet {
		eng.brkCfg = breaker.DefaultConfig()
	}
	eng.breakers = breaker.NewRegistry(eng.brkCfg, nil)

	eng.dlqService = dlq.NewService(ds, js)

	config := o.Config()

	// The broker fans lifecycle events out to progress subscribers; it
	// hears about them the same way any other extension does.
	eng.broker = stream.NewBroker(logger, stream.WithTerminalGrace(config.TerminalGrace))
	eng.extensions.Register(eng.broker)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/musewave/maestro")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/musewave/maestro")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging →
	// credential → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Credential(),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(
		eng.registry, eng.extensions, eng.jobStore, eng.dlqService,
		eng.policy, logger,
		worker.WithBreakers(eng.breakers),
		worker.WithResultCache(eng.cacheStore, eng.cacheTTL),
		worker.WithMiddleware(allMws...),
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolTypes(config.Types),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithLeaseDuration(config.LeaseDuration),
	}

	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Orchestrator.
	o.SetPool(eng.pool)
	o.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T, R any](eng *Engine, def *job.Definition[T, R]) {
	job.RegisterDefinition(eng.registry, def)
}

// EnqueueResult is the synchronous outcome of an enqueue request.
type EnqueueResult struct {
	// Job is the accepted (or reused) job. Nil on a cache hit.
	Job *job.Job `json:"job,omitempty"`

	// Reused is true when no new work was scheduled: the request hit the
	// result cache or attached to an existing in-flight job.
	Reused bool `json:"reused"`

	// CachedResult carries the completed result on a cache hit.
	CachedResult json.RawMessage `json:"cachedResult,omitempty"`
}

// Enqueue admits a typed generation request.
func Enqueue[T any](ctx context.Context, eng *Engine, jobType string, params T, opts ...job.Option) (*EnqueueResult, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for job %q: %w", jobType, err)
	}
	return eng.EnqueueRaw(ctx, jobType, data, opts...)
}

// EnqueueRaw admits a generation request with pre-serialized params.
//
// Admission order: validation, rate limit, result cache, dedupe. A
// cache hit returns the finished result synchronously without touching
// the queue; a dedupe hit returns the existing in-flight job.
func (eng *Engine) EnqueueRaw(ctx context.Context, jobType string, params []byte, opts ...job.Option) (*EnqueueResult, error) {
	if jobType == "" {
		return nil, maestro.Validationf("type", "must not be empty")
	}
	if _, ok := eng.registry.Get(jobType); !ok {
		return nil, fmt.Errorf("%w: %q", maestro.ErrNoHandler, jobType)
	}

	// Scheduling defaults come from the registered definition (a video
	// render declares a longer timeout than a plan call); per-request
	// fields never do.
	jobOpts := job.DefaultOptions()
	if defaults, ok := eng.registry.DefaultsFor(jobType); ok {
		jobOpts.MaxAttempts = defaults.MaxAttempts
		jobOpts.Priority = defaults.Priority
		jobOpts.Timeout = defaults.Timeout
		jobOpts.Delay = defaults.Delay
	}
	for _, opt := range opts {
		opt(&jobOpts)
	}

	if err := eng.admit(ctx, jobOpts.CredentialID); err != nil {
		return nil, err
	}

	cacheKey, err := cache.Key(jobType, params)
	if err != nil {
		return nil, maestro.Validationf("params", "not valid JSON: %v", err)
	}
	if entry, err := eng.cacheStore.GetEntry(ctx, cacheKey); err == nil {
		return &EnqueueResult{Reused: true, CachedResult: entry.Result}, nil
	} else if !errors.Is(err, maestro.ErrCacheMiss) {
		eng.logger.Warn("cache lookup failed, enqueueing anyway",
			slog.String("job_type", jobType),
			slog.String("error", err.Error()),
		)
	}

	if jobOpts.DedupeKey != "" {
		if existing, err := eng.jobStore.FindJobByDedupeKey(ctx, jobOpts.DedupeKey); err == nil {
			return &EnqueueResult{Job: existing, Reused: true}, nil
		} else if !errors.Is(err, maestro.ErrJobNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:       maestro.NewEntity(),
		ID:           id.NewJobID(),
		Type:         jobType,
		Status:       job.StatusQueued,
		Params:       params,
		Priority:     jobOpts.Priority,
		MaxAttempts:  jobOpts.MaxAttempts,
		AvailableAt:  now.Add(jobOpts.Delay),
		DedupeKey:    jobOpts.DedupeKey,
		CacheKey:     cacheKey,
		ParentID:     jobOpts.ParentID,
		CredentialID: jobOpts.CredentialID,
		Timeout:      jobOpts.Timeout,
	}

	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		// Two identical requests can race past the dedupe lookup; the
		// store's uniqueness guarantee turns the loser into a reuse.
		if jobOpts.DedupeKey != "" && errors.Is(err, maestro.ErrJobAlreadyExists) {
			if existing, findErr := eng.jobStore.FindJobByDedupeKey(ctx, jobOpts.DedupeKey); findErr == nil {
				return &EnqueueResult{Job: existing, Reused: true}, nil
			}
		}
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return &EnqueueResult{Job: j}, nil
}

// admit applies the caller's per-window request budget. Anonymous
// requests (no credential) are not rate limited.
func (eng *Engine) admit(ctx context.Context, credID id.CredentialID) error {
	if credID.IsNil() || eng.limiter == nil {
		return nil
	}

	cred, err := eng.credStore.GetCredential(ctx, credID)
	if err != nil {
		return err
	}
	if cred.Disabled {
		return maestro.ErrCredentialNotFound
	}

	d, err := eng.limiter.Allow(ctx, credID, cred.Limit())
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: window resets at %s", maestro.ErrRateLimited, d.ResetAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Status returns the caller-facing view of a job.
func (eng *Engine) Status(ctx context.Context, jobID id.JobID) (job.StatusView, error) {
	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return job.StatusView{}, err
	}
	return j.View(), nil
}

// Cancel stops a queued or running job. Queued jobs simply never run;
// running jobs have their attempt context cancelled, and any result the
// interrupted handler still produces is discarded.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := eng.jobStore.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	eng.pool.Cancel(jobID)
	eng.extensions.EmitJobCancelled(ctx, j)
	return j, nil
}

// Subscribe attaches a progress subscriber to the given topics.
func (eng *Engine) Subscribe(subscriberID string, topics ...string) *stream.Subscriber {
	return eng.broker.Subscribe(subscriberID, topics...)
}

// Start begins job processing by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.o.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.o.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the handler registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Orchestrator returns the underlying Orchestrator.
func (eng *Engine) Orchestrator() *maestro.Orchestrator { return eng.o }

// JobStore returns the engine's job store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// DLQService returns the engine's DLQ service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Broker returns the progress broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Breakers returns the per-engine circuit breaker registry.
func (eng *Engine) Breakers() *breaker.Registry { return eng.breakers }

// CredentialStore returns the credential store.
func (eng *Engine) CredentialStore() auth.Store { return eng.credStore }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
