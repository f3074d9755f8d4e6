package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/id"
)

const dlqColumns = `
	id, job_id, job_type, params, error,
	attempts, max_attempts, permanent, credential_id,
	failed_at, replayed_at, created_at`

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO maestro_dlq (
			id, job_id, job_type, params, error,
			attempts, max_attempts, permanent, credential_id,
			failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID.String(), entry.JobID.String(), entry.JobType, entry.Params, entry.Error,
		entry.Attempts, entry.MaxAttempts, entry.Permanent, entry.CredentialID,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries, most recent failure first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM maestro_dlq WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}

	query += " ORDER BY failed_at DESC"

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
		return nil, fmt.Errorf("maestro/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		entry, err := scanDLQ(rows)
		if err != nil {
			return nil, fmt.Errorf("maestro/postgres: scan dlq row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("maestro/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM maestro_dlq WHERE id = $1`,
		entryID.String(),
	)

	entry, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, maestro.ErrDLQNotFound
		}
		return nil, fmt.Errorf("maestro/postgres: get dlq: %w", err)
	}
	return entry, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE maestro_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("maestro/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return maestro.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM maestro_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("maestro/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of dead-lettered entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM maestro_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("maestro/postgres: count dlq: %w", err)
	}
	return count, nil
}

func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		entry    dlq.Entry
		idStr    string
		jobIDStr string
	)
	err := row.Scan(
		&idStr, &jobIDStr, &entry.JobType, &entry.Params, &entry.Error,
		&entry.Attempts, &entry.MaxAttempts, &entry.Permanent, &entry.CredentialID,
		&entry.FailedAt, &entry.ReplayedAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entryID, err := id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: parse dlq id %q: %w", idStr, err)
	}
	entry.ID = entryID

	jobID, err := id.ParseJobID(jobIDStr)
	if err != nil {
		return nil, fmt.Errorf("maestro/postgres: parse dlq job id %q: %w", jobIDStr, err)
	}
	entry.JobID = jobID

	return &entry, nil
}
