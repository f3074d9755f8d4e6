// Package janitor runs scheduled retention sweeps: terminal jobs past
// their retention window, old dead-letter entries, and expired cache
// entries are removed on a cron schedule. Retention is deliberately
// outside the hot path; the worker pool never deletes anything.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/musewave/maestro/cache"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/job"
)

// Emitter emits retention lifecycle events.
// ext.Registry satisfies this interface via EmitRetentionRan.
type Emitter interface {
	EmitRetentionRan(ctx context.Context, jobsRemoved, dlqRemoved, cacheRemoved int64)
}

// Sweeper is an optional in-process cleanup hook run alongside each
// sweep, e.g. the memory rate limiter dropping closed windows.
type Sweeper interface {
	Sweep()
}

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Option configures a Janitor.
type Option func(*Janitor)

// WithSchedule sets the sweep schedule. Defaults to hourly.
func WithSchedule(expr string) Option {
	return func(j *Janitor) { j.schedule = expr }
}

// WithJobRetention sets how long terminal jobs are kept. Defaults to 7 days.
func WithJobRetention(d time.Duration) Option {
	return func(j *Janitor) { j.jobTTL = d }
}

// WithDLQRetention sets how long dead-letter entries are kept.
// Defaults to 30 days.
func WithDLQRetention(d time.Duration) Option {
	return func(j *Janitor) { j.dlqTTL = d }
}

// WithSweeper adds an in-process cleanup hook.
func WithSweeper(s Sweeper) Option {
	return func(j *Janitor) { j.sweepers = append(j.sweepers, s) }
}

// WithTickInterval sets how often the janitor checks whether the
// schedule is due. Defaults to one minute.
func WithTickInterval(d time.Duration) Option {
	return func(j *Janitor) { j.tickInterval = d }
}

// Janitor runs retention sweeps on a tick loop against the parsed
// schedule.
type Janitor struct {
	jobs       job.Store
	deadLetter dlq.Store
	caches     cache.Store
	emitter    Emitter
	logger     *slog.Logger

	schedule     string
	jobTTL       time.Duration
	dlqTTL       time.Duration
	tickInterval time.Duration
	sweepers     []Sweeper

	sched  cronlib.Schedule
	nextMu sync.Mutex
	next   time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Janitor. The stores may all be the same value when a
// composite backend is in use.
func New(jobs job.Store, deadLetter dlq.Store, caches cache.Store, emitter Emitter, logger *slog.Logger, opts ...Option) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		jobs:         jobs,
		deadLetter:   deadLetter,
		caches:       caches,
		emitter:      emitter,
		logger:       logger,
		schedule:     "@every 1h",
		jobTTL:       7 * 24 * time.Hour,
		dlqTTL:       30 * 24 * time.Hour,
		tickInterval: time.Minute,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}

	sched, err := cronParser.Parse(j.schedule)
	if err != nil {
		return nil, err
	}
	j.sched = sched
	j.next = sched.Next(time.Now().UTC())
	return j, nil
}

// Start launches the tick loop.
func (j *Janitor) Start(_ context.Context) error {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.tickLoop()
		j.logger.Info("janitor started",
			slog.String("schedule", j.schedule),
			slog.Duration("job_retention", j.jobTTL),
			slog.Duration("dlq_retention", j.dlqTTL),
		)
	})
	return nil
}

// Stop signals the janitor to stop and waits for the loop to finish.
func (j *Janitor) Stop(_ context.Context) error {
	j.stopOnce.Do(func() {
		close(j.stopCh)
		j.wg.Wait()
		j.logger.Info("janitor stopped")
	})
	return nil
}

func (j *Janitor) tickLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			now := time.Now().UTC()
			j.nextMu.Lock()
			due := !j.next.After(now)
			if due {
				j.next = j.sched.Next(now)
			}
			j.nextMu.Unlock()
			if due {
				j.RunOnce(context.Background())
			}
		}
	}
}

// RunOnce performs a single retention sweep immediately. Each target is
// swept independently; one failing store does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	jobsRemoved, err := j.jobs.DeleteJobsBefore(ctx, now.Add(-j.jobTTL))
	if err != nil {
		j.logger.Error("job retention sweep failed", slog.String("error", err.Error()))
	}

	dlqRemoved, err := j.deadLetter.PurgeDLQ(ctx, now.Add(-j.dlqTTL))
	if err != nil {
		j.logger.Error("dlq retention sweep failed", slog.String("error", err.Error()))
	}

	cacheRemoved, err := j.caches.DeleteExpiredEntries(ctx)
	if err != nil {
		j.logger.Error("cache retention sweep failed", slog.String("error", err.Error()))
	}

	for _, s := range j.sweepers {
		s.Sweep()
	}

	if j.emitter != nil {
		j.emitter.EmitRetentionRan(ctx, jobsRemoved, dlqRemoved, cacheRemoved)
	}

	j.logger.Info("retention sweep complete",
		slog.Int64("jobs_removed", jobsRemoved),
		slog.Int64("dlq_removed", dlqRemoved),
		slog.Int64("cache_removed", cacheRemoved),
	)
}
