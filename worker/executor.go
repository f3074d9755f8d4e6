// Package worker provides the job execution engine — an Executor that
// runs claimed jobs through middleware, the engine circuit breaker, and
// the registered handler, and a Pool that manages concurrent worker
// goroutines polling for work.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/backoff"
	"github.com/musewave/maestro/breaker"
	"github.com/musewave/maestro/cache"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/ext"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/middleware"
)

// DefaultCacheTTL is how long successful results stay cached when the
// executor is not configured otherwise.
const DefaultCacheTTL = 24 * time.Hour

// Executor runs a single claimed job: middleware, circuit breaker,
// handler, then the outcome — completion with cache population, retry
// with backoff, or terminal failure with a DLQ push.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	dlqService *dlq.Service
	policy     backoff.Policy
	breakers   *breaker.Registry
	cache      cache.Store
	cacheTTL   time.Duration
	mw         middleware.Middleware
	logger     *slog.Logger
}

// ExecutorOption configures optional Executor collaborators.
type ExecutorOption func(*Executor)

// WithBreakers routes handler calls through per-engine circuit breakers.
func WithBreakers(r *breaker.Registry) ExecutorOption {
	return func(e *Executor) { e.breakers = r }
}

// WithResultCache populates the result cache on success for jobs that
// carry a cache key. A non-positive ttl uses DefaultCacheTTL.
func WithResultCache(c cache.Store, ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.cache = c
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithMiddleware sets the middleware chain handler calls run through.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	policy backoff.Policy,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	if policy == nil {
		policy = backoff.DefaultPolicy()
	}
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		policy:     policy,
		cacheTTL:   DefaultCacheTTL,
		mw:         middleware.Chain(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a claimed job end to end.
// On success: marks succeeded, populates the cache, emits JobCompleted.
// On transient failure with attempts remaining: requeues with backoff,
// emits JobRetrying.
// On permanent failure or exhausted attempts: marks failed, pushes to the
// dead letter queue, emits JobFailed + JobDLQ.
// A job cancelled mid-flight has its outcome discarded.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		// Nothing will ever handle this type; retrying cannot help.
		return e.failTerminal(ctx, j, maestro.ErrNoHandler, true)
	}

	start := time.Now()

	progress := func(pct float64, stage string) {
		e.extensions.EmitJobProgress(ctx, j, pct, stage)
	}

	var result json.RawMessage
	terminal := func(ctx context.Context) error {
		var handlerErr error
		result, handlerErr = handler(ctx, j.Params, progress)
		return handlerErr
	}

	run := func(ctx context.Context) error {
		return e.mw(ctx, j, terminal)
	}

	var err error
	if br := e.breakerFor(j.Type); br != nil {
		err = br.Execute(ctx, run)
	} else {
		err = run(ctx)
	}
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, j, err)
	}
	return e.handleSuccess(ctx, j, result, elapsed)
}

// breakerFor returns the circuit breaker protecting the job type's
// engine, or nil when the type has none.
func (e *Executor) breakerFor(jobType string) *breaker.Breaker {
	if e.breakers == nil {
		return nil
	}
	engine := e.registry.EngineOf(jobType)
	if engine == "" {
		return nil
	}
	return e.breakers.Get(engine)
}

// handleSuccess records the result and populates the cache. A result
// arriving after the job went terminal (cancelled, reaped and finished
// elsewhere) is discarded.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, result json.RawMessage, elapsed time.Duration) error {
	if err := e.store.CompleteJob(ctx, j.ID, result); err != nil {
		if errors.Is(err, maestro.ErrJobTerminal) {
			e.logger.Info("discarding late result for terminal job",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
			)
			return nil
		}
		e.logger.Error("failed to complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.Status = job.StatusSucceeded
	j.Result = result
	j.LastError = ""

	if e.cache != nil && j.CacheKey != "" {
		if cacheErr := e.cache.SetEntry(ctx, j.CacheKey, result, e.cacheTTL); cacheErr != nil {
			// Cache population is best-effort; the job already succeeded.
			e.logger.Warn("failed to cache job result",
				slog.String("job_id", j.ID.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure classifies the error and either schedules a retry or
// fails the job terminally.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	if maestro.IsPermanent(handlerErr) {
		return e.failTerminal(ctx, j, handlerErr, true)
	}

	// Attempts was already incremented when the job was claimed.
	if j.Attempts >= j.MaxAttempts {
		return e.failTerminal(ctx, j, handlerErr, false)
	}

	return e.scheduleRetry(ctx, j, handlerErr)
}

// scheduleRetry requeues the job with the next backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, handlerErr error) error {
	delay := e.policy.Next(j.Backoff)
	availableAt := time.Now().UTC().Add(delay)

	if err := e.store.FailJob(ctx, j.ID, handlerErr.Error(), true, availableAt, delay); err != nil {
		if errors.Is(err, maestro.ErrJobTerminal) {
			return nil
		}
		e.logger.Error("failed to requeue job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.Status = job.StatusQueued
	j.LastError = handlerErr.Error()
	j.AvailableAt = availableAt
	j.Backoff = delay

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, availableAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}

// failTerminal marks the job failed and pushes it to the dead letter
// queue.
func (e *Executor) failTerminal(ctx context.Context, j *job.Job, handlerErr error, permanent bool) error {
	if err := e.store.FailJob(ctx, j.ID, handlerErr.Error(), false, time.Time{}, 0); err != nil {
		if errors.Is(err, maestro.ErrJobTerminal) {
			return nil
		}
		e.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.Status = job.StatusFailed
	j.LastError = handlerErr.Error()

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, j, handlerErr, permanent); dlqErr != nil {
			e.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	e.extensions.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job failed terminally",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("attempts", j.Attempts),
		slog.Bool("permanent", permanent),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
