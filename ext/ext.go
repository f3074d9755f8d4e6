// Package ext defines the extension system for Maestro.
// Extensions are notified of lifecycle events (job enqueued, completed,
// failed, etc.) and can react to them — logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobProgress is called when a handler reports progress.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job, pct float64, stage string) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, availableAt time.Time) error
}

// JobCancelled is called when a job is cancelled by a caller.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// JobReclaimed is called when the reaper returns a stalled job to the
// queue after its lease expired.
type JobReclaimed interface {
	OnJobReclaimed(ctx context.Context, j *job.Job, workerID id.WorkerID) error
}

// RetentionRan is called after a retention sweep completes.
type RetentionRan interface {
	OnRetentionRan(ctx context.Context, jobsRemoved, dlqRemoved, cacheRemoved int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
