package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/musewave/maestro/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Type filters by job type. Empty means all types.
	Type string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Type filters by job type. Empty means all types.
	Type string
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs. ClaimJobs is the
// safety-critical operation: implementations must serialize concurrent
// claims so that no two callers ever receive the same job.
type Store interface {
	// CreateJob persists a new job in queued state.
	CreateJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically claims up to limit queued jobs of the given
	// types whose AvailableAt has passed, transitions them to running
	// under the worker's lease, and returns them. Jobs are ordered by
	// priority (descending), then AvailableAt, then CreatedAt.
	ClaimJobs(ctx context.Context, types []string, limit int, workerID id.WorkerID) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// FindJobByDedupeKey returns the non-terminal job holding the given
	// dedupe key, or maestro.ErrJobNotFound if none exists.
	FindJobByDedupeKey(ctx context.Context, key string) (*Job, error)

	// CompleteJob transitions a running job to succeeded with its result.
	// Completing a terminal or cancelled job is a no-op returning
	// maestro.ErrJobTerminal so late handler results are discarded.
	CompleteJob(ctx context.Context, jobID id.JobID, result json.RawMessage) error

	// FailJob records a failure. With retry true the job is requeued with
	// the given availability time and backoff; otherwise it transitions to
	// the terminal failed status.
	FailJob(ctx context.Context, jobID id.JobID, errMsg string, retry bool, availableAt time.Time, backoff time.Duration) error

	// CancelJob marks a job cancelled. Queued jobs become terminal
	// immediately; running jobs are marked so their eventual result is
	// discarded. Cancelling a terminal job returns maestro.ErrJobTerminal.
	CancelJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job. Administrative
	// write; dispatch paths use the guarded transitions instead.
	UpdateJob(ctx context.Context, j *Job) error

	// RequeueJob returns a running job to the queue, refunding the
	// attempt its claim consumed. The transition applies only while the
	// job is still running under fromWorker; otherwise the job is left
	// untouched and maestro.ErrJobTerminal (finished or cancelled) or
	// maestro.ErrJobNotFound (missing or re-claimed) is returned.
	RequeueJob(ctx context.Context, jobID id.JobID, fromWorker id.WorkerID, availableAt time.Time) error

	// HeartbeatJob renews the lease on a running job.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns running jobs whose lease heartbeat is older
	// than the threshold, indicating the claiming worker may have died.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// ListJobsByStatus returns jobs matching the given status.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// DeleteJobsBefore removes terminal jobs completed before the cutoff.
	// Returns the number removed. Used by retention, never by dispatch.
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
