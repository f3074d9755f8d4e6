package dlq

import (
	"context"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds a DLQ Entry from a terminally failed job and persists it.
// permanent marks failures the handler declared non-retryable.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error, permanent bool) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:           id.NewDLQID(),
		JobID:        j.ID,
		JobType:      j.Type,
		Params:       j.Params,
		Error:        jobErr.Error(),
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		Permanent:    permanent,
		CredentialID: j.CredentialID,
		FailedAt:     now,
		CreatedAt:    now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}

// Replay re-enqueues a DLQ entry as a new queued job and marks the entry
// as replayed. The new job gets a fresh ID, zero attempts, and is
// eligible to run immediately.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity:       maestro.NewEntity(),
		ID:           id.NewJobID(),
		Type:         entry.JobType,
		Status:       job.StatusQueued,
		Params:       entry.Params,
		MaxAttempts:  entry.MaxAttempts,
		CredentialID: entry.CredentialID,
		AvailableAt:  time.Now().UTC(),
	}

	if err := s.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued. Surface the marking failure but
		// return the job so the caller can track it.
		return j, err
	}

	return j, nil
}
