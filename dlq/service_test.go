package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/store/memory"
)

func newService(t *testing.T) (*dlq.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	return dlq.NewService(st, st), st
}

func failedJob() *job.Job {
	return &job.Job{
		Entity:       maestro.NewEntity(),
		ID:           id.NewJobID(),
		Type:         job.TypeAudio,
		Status:       job.StatusFailed,
		Params:       json.RawMessage(`{"genre":"jazz"}`),
		Attempts:     3,
		MaxAttempts:  3,
		CredentialID: id.NewCredentialID(),
	}
}

func TestService_PushPreservesJobDetails(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	j := failedJob()
	if err := svc.Push(ctx, j, errors.New("engine unavailable"), false); err != nil {
		t.Fatal(err)
	}

	entries, err := st.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.JobID != j.ID {
		t.Errorf("JobID = %v, want %v", e.JobID, j.ID)
	}
	if e.JobType != job.TypeAudio {
		t.Errorf("JobType = %q, want %q", e.JobType, job.TypeAudio)
	}
	if string(e.Params) != string(j.Params) {
		t.Errorf("Params = %s, want %s", e.Params, j.Params)
	}
	if e.Error != "engine unavailable" {
		t.Errorf("Error = %q, want original error message", e.Error)
	}
	if e.Attempts != 3 || e.MaxAttempts != 3 {
		t.Errorf("Attempts/MaxAttempts = %d/%d, want 3/3", e.Attempts, e.MaxAttempts)
	}
	if e.Permanent {
		t.Error("Permanent = true, want false for exhausted retries")
	}
	if e.ReplayedAt != nil {
		t.Error("ReplayedAt set on fresh entry")
	}
}

func TestService_PushPermanent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	j := failedJob()
	j.Attempts = 1
	if err := svc.Push(ctx, j, maestro.Permanent(errors.New("lyrics rejected")), true); err != nil {
		t.Fatal(err)
	}

	entries, _ := st.ListDLQ(ctx, dlq.ListOpts{})
	if len(entries) != 1 || !entries[0].Permanent {
		t.Fatal("permanent failure not flagged on DLQ entry")
	}
}

func TestService_Replay(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	orig := failedJob()
	if err := svc.Push(ctx, orig, errors.New("boom"), false); err != nil {
		t.Fatal(err)
	}
	entries, _ := st.ListDLQ(ctx, dlq.ListOpts{})
	entryID := entries[0].ID

	replayed, err := svc.Replay(ctx, entryID)
	if err != nil {
		t.Fatal(err)
	}

	if replayed.ID == orig.ID {
		t.Error("replayed job reused the original job ID")
	}
	if replayed.Status != job.StatusQueued {
		t.Errorf("Status = %v, want QUEUED", replayed.Status)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if string(replayed.Params) != string(orig.Params) {
		t.Errorf("Params = %s, want original %s", replayed.Params, orig.Params)
	}
	if replayed.CredentialID != orig.CredentialID {
		t.Error("replayed job lost credential attribution")
	}

	// The new job must be claimable.
	stored, err := st.GetJob(ctx, replayed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != job.StatusQueued {
		t.Errorf("stored status = %v, want QUEUED", stored.Status)
	}

	// The entry is marked replayed.
	e, err := st.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatal(err)
	}
	if e.ReplayedAt == nil {
		t.Error("ReplayedAt not set after replay")
	}
}

func TestService_ReplayUnknownEntry(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, maestro.ErrDLQNotFound) {
		t.Fatalf("err = %v, want ErrDLQNotFound", err)
	}
}

func TestStore_PurgeDLQ(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Push(ctx, failedJob(), errors.New("boom"), false); err != nil {
			t.Fatal(err)
		}
	}

	n, err := st.PurgeDLQ(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("purged %d, want 3", n)
	}
	count, _ := st.CountDLQ(ctx)
	if count != 0 {
		t.Fatalf("count after purge = %d, want 0", count)
	}
}
