package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// jobColumns is the canonical column list used by every job query.
const jobColumns = `
	id, type, status, params, result, last_error,
	priority, attempts, max_attempts,
	available_at, backoff_ms, dedupe_key, cache_key,
	parent_id, credential_id, worker_id, heartbeat_at,
	started_at, completed_at, timeout_ms, created_at, updated_at`

// CreateJob persists a new job in queued state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO maestro_jobs (
			id, type, status, params, result, last_error,
			priority, attempts, max_attempts,
			available_at, backoff_ms, dedupe_key, cache_key,
			parent_id, credential_id, worker_id, heartbeat_at,
			started_at, completed_at, timeout_ms, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, NULLIF($12, ''), $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22
		)`,
		j.ID.String(), j.Type, string(j.Status), j.Params, j.Result, j.LastError,
		j.Priority, j.Attempts, j.MaxAttempts,
		j.AvailableAt, j.Backoff.Milliseconds(), j.DedupeKey, j.CacheKey,
		j.ParentID, j.CredentialID, j.WorkerID, j.HeartbeatAt,
		j.StartedAt, j.CompletedAt, j.Timeout.Milliseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return maestro.ErrJobAlreadyExists
		}
		return fmt.Errorf("maestro/postgres: create job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit eligible queued jobs of the
// given types, transitions them to running under the worker's lease, and
// returns them. SELECT FOR UPDATE SKIP LOCKED serializes concurrent
// claimers: each locked candidate row is visible to exactly one claim.
func (s *Store) ClaimJobs(ctx context.Context, types []string, limit int, workerID id.WorkerID) ([]*job.Job, error) {
	if types == nil {
		types = []string{}
	}
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE maestro_jobs
			SET status = 'running',
			    worker_id = $3,
			    attempts = attempts + 1,
			    heartbeat_at = NOW(),
			    started_at = COALESCE(started_at, NOW()),
			    updated_at = NOW()
			WHERE id IN (
				SELECT id FROM maestro_jobs
				WHERE status = 'queued'
				  AND available_at <= NOW()
				  AND (cardinality($1::text[]) = 0 OR type = ANY($1))
				ORDER BY priority DESC, available_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, available_at ASC, created_at ASC`,
		types, limit, workerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM maestro_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrJobNotFound
		}
		return nil, fmt.Errorf("maestro/postgres: get job: %w", err)
	}
	return j, nil
}

// FindJobByDedupeKey returns the non-terminal job holding the given key.
func (s *Store) FindJobByDedupeKey(ctx context.Context, key string) (*job.Job, error) {
	if key == "" {
		return nil, maestro.ErrJobNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM maestro_jobs
		 WHERE dedupe_key = $1 AND status IN ('queued', 'running')
		 LIMIT 1`,
		key,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrJobNotFound
		}
		return nil, fmt.Errorf("maestro/postgres: find job by dedupe key: %w", err)
	}
	return j, nil
}

// CompleteJob transitions a running job to succeeded with its result.
// The status guard in the WHERE clause makes late results on terminal
// jobs a no-op reported as maestro.ErrJobTerminal.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE maestro_jobs
		SET status = 'succeeded', result = $2, last_error = '',
		    completed_at = NOW(), worker_id = NULL, heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed', 'cancelled')`,
		jobID.String(), result,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// FailJob records a failure: requeue with backoff when retry is true,
// terminal failed otherwise.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, errMsg string, retry bool, availableAt time.Time, backoff time.Duration) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if retry {
		tag, err = s.pool.Exec(ctx, `
			UPDATE maestro_jobs
			SET status = 'queued', last_error = $2,
			    available_at = $3, backoff_ms = $4,
			    worker_id = NULL, heartbeat_at = NULL, updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('succeeded', 'failed', 'cancelled')`,
			jobID.String(), errMsg, availableAt, backoff.Milliseconds(),
		)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE maestro_jobs
			SET status = 'failed', last_error = $2, completed_at = NOW(),
			    worker_id = NULL, heartbeat_at = NULL, updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('succeeded', 'failed', 'cancelled')`,
			jobID.String(), errMsg,
		)
	}
	if err != nil {
		return fmt.Errorf("maestro/postgres: fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// CancelJob marks a job cancelled and returns the updated record.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE maestro_jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed', 'cancelled')
		RETURNING `+jobColumns,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, s.missingOrTerminal(ctx, jobID)
		}
		return nil, fmt.Errorf("maestro/postgres: cancel job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE maestro_jobs SET
			type = $2, status = $3, params = $4, result = $5, last_error = $6,
			priority = $7, attempts = $8, max_attempts = $9,
			available_at = $10, backoff_ms = $11,
			dedupe_key = NULLIF($12, ''), cache_key = $13,
			parent_id = $14, credential_id = $15, worker_id = $16,
			heartbeat_at = $17, started_at = $18, completed_at = $19,
			timeout_ms = $20, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.Type, string(j.Status), j.Params, j.Result, j.LastError,
		j.Priority, j.Attempts, j.MaxAttempts,
		j.AvailableAt, j.Backoff.Milliseconds(),
		j.DedupeKey, j.CacheKey,
		j.ParentID, j.CredentialID, j.WorkerID,
		j.HeartbeatAt, j.StartedAt, j.CompletedAt,
		j.Timeout.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return maestro.ErrJobNotFound
	}
	return nil
}

// RequeueJob returns a running job to the queue, refunding the attempt
// its claim consumed. The status and worker guards make the transition
// race-safe: a job that completed, failed, or was cancelled between the
// reaper's snapshot and this write is left untouched.
func (s *Store) RequeueJob(ctx context.Context, jobID id.JobID, fromWorker id.WorkerID, availableAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE maestro_jobs
		SET status = 'queued', available_at = $3,
		    attempts = GREATEST(attempts - 1, 0),
		    worker_id = NULL, heartbeat_at = NULL, updated_at = NOW()
		WHERE id = $1 AND worker_id = $2 AND status = 'running'`,
		jobID.String(), fromWorker.String(), availableAt,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// HeartbeatJob renews the lease on a running job. The worker guard keeps
// a reclaimed job's previous owner from reviving a lease it lost.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE maestro_jobs
		SET heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND worker_id = $2 AND status = 'running'`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return maestro.ErrJobNotFound
	}
	return nil
}

// ReapStaleJobs returns running jobs whose lease heartbeat is older than
// the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM maestro_jobs
		WHERE status = 'running'
		  AND (heartbeat_at IS NULL OR heartbeat_at < NOW() - make_interval(secs => $1))`,
		threshold.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: reap stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM maestro_jobs WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM maestro_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("maestro/postgres: count jobs: %w", err)
	}
	return count, nil
}

// DeleteJobsBefore removes terminal jobs completed before the cutoff.
func (s *Store) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM maestro_jobs
		WHERE status IN ('succeeded', 'failed', 'cancelled')
		  AND completed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("maestro/postgres: delete jobs before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// missingOrTerminal distinguishes a zero-row update: the job either does
// not exist or is already terminal.
func (s *Store) missingOrTerminal(ctx context.Context, jobID id.JobID) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM maestro_jobs WHERE id = $1`, jobID.String(),
	).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return maestro.ErrJobNotFound
		}
		return fmt.Errorf("maestro/postgres: check job status: %w", err)
	}
	if job.Status(status).Terminal() {
		return maestro.ErrJobTerminal
	}
	return maestro.ErrJobNotFound
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		statusStr string
		dedupeKey *string
		backoffMs int64
		timeoutMs int64
	)
	err := row.Scan(
		&idStr, &j.Type, &statusStr, &j.Params, &j.Result, &j.LastError,
		&j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.AvailableAt, &backoffMs, &dedupeKey, &j.CacheKey,
		&j.ParentID, &j.CredentialID, &j.WorkerID, &j.HeartbeatAt,
		&j.StartedAt, &j.CompletedAt, &timeoutMs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(statusStr)
	j.Backoff = time.Duration(backoffMs) * time.Millisecond
	j.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if dedupeKey != nil {
		j.DedupeKey = *dedupeKey
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("maestro/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("maestro/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("maestro/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
