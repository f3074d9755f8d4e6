package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/backoff"
	"github.com/musewave/maestro/breaker"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/ext"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/middleware"
	"github.com/musewave/maestro/store/memory"
	"github.com/musewave/maestro/worker"
)

func newQueuedJob(jobType string) *job.Job {
	return &job.Job{
		Entity:      maestro.NewEntity(),
		ID:          id.NewJobID(),
		Type:        jobType,
		Status:      job.StatusQueued,
		Params:      json.RawMessage(`{"prompt":"lofi beats"}`),
		MaxAttempts: 3,
		AvailableAt: time.Now().UTC(),
	}
}

// claimForTest enqueues the job and claims it, mirroring what the pool
// does before handing a job to the executor.
func claimForTest(t *testing.T, s *memory.Store, j *job.Job) *job.Job {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	claimed, err := s.ClaimJobs(context.Background(), nil, 1, id.NewWorkerID())
	if err != nil {
		t.Fatalf("claim job: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d jobs, want 1", len(claimed))
	}
	return claimed[0]
}

func newTestExecutor(s *memory.Store, reg *job.Registry, opts ...worker.ExecutorOption) *worker.Executor {
	logger := slog.Default()
	return worker.NewExecutor(
		reg, ext.NewRegistry(logger), s, dlq.NewService(s, s),
		backoff.NewExponential(10*time.Millisecond, 80*time.Millisecond),
		logger, opts...,
	)
}

func TestExecutor_Success(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("audio", "riffusion",
		func(_ context.Context, p struct {
			Prompt string `json:"prompt"`
		}, progress job.ProgressFunc) (struct {
			URL string `json:"url"`
		}, error) {
			if p.Prompt != "lofi beats" {
				t.Errorf("prompt = %q, want %q", p.Prompt, "lofi beats")
			}
			progress(50, "rendering")
			return struct {
				URL string `json:"url"`
			}{URL: "assets/track.wav"}, nil
		},
	))

	j := claimForTest(t, s, newQueuedJob("audio"))
	e := newTestExecutor(s, reg)

	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("execute error: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusSucceeded {
		t.Errorf("status = %q, want %q", got.Status, job.StatusSucceeded)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if want := `{"url":"assets/track.wav"}`; string(got.Result) != want {
		t.Errorf("result = %s, want %s", got.Result, want)
	}
}

func TestExecutor_TransientFailureSchedulesRetry(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("audio", "riffusion",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			return struct{}{}, errors.New("engine 503")
		},
	))

	j := claimForTest(t, s, newQueuedJob("audio"))
	e := newTestExecutor(s, reg)

	before := time.Now().UTC()
	if err := e.Execute(context.Background(), j); err == nil {
		t.Fatal("expected execute to return the handler error")
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Fatalf("status = %q, want %q", got.Status, job.StatusQueued)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.LastError != "engine 503" {
		t.Errorf("lastError = %q, want %q", got.LastError, "engine 503")
	}
	if got.Backoff != 10*time.Millisecond {
		t.Errorf("backoff = %v, want 10ms", got.Backoff)
	}
	if !got.AvailableAt.After(before) {
		t.Error("expected availableAt in the future")
	}
}

func TestExecutor_BackoffNeverDecreases(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("audio", "riffusion",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			return struct{}{}, errors.New("engine 503")
		},
	))

	base := newQueuedJob("audio")
	base.MaxAttempts = 5
	j := claimForTest(t, s, base)
	e := newTestExecutor(s, reg)

	workerID := id.NewWorkerID()
	var prev time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		_ = e.Execute(context.Background(), j)

		got, err := s.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.Backoff < prev {
			t.Fatalf("attempt %d: backoff %v < previous %v", attempt, got.Backoff, prev)
		}
		prev = got.Backoff

		// Make it eligible immediately and reclaim for the next attempt.
		got.AvailableAt = time.Now().UTC().Add(-time.Millisecond)
		if err := s.UpdateJob(context.Background(), got); err != nil {
			t.Fatalf("update job: %v", err)
		}
		claimed, err := s.ClaimJobs(context.Background(), nil, 1, workerID)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("reclaim: %v (%d jobs)", err, len(claimed))
		}
		j = claimed[0]
	}

	if prev != 80*time.Millisecond {
		t.Errorf("final backoff = %v, want cap 80ms", prev)
	}
}

func TestExecutor_ExhaustedAttemptsGoToDLQ(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("mix", "",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			return struct{}{}, errors.New("disk full")
		},
	))

	base := newQueuedJob("mix")
	base.MaxAttempts = 1
	j := claimForTest(t, s, base)
	e := newTestExecutor(s, reg)

	if err := e.Execute(context.Background(), j); err == nil {
		t.Fatal("expected execute to return the handler error")
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, job.StatusFailed)
	}

	entries, err := s.ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq has %d entries, want 1", len(entries))
	}
	if entries[0].Permanent {
		t.Error("exhausted retries should not be marked permanent")
	}
	if entries[0].JobID != j.ID {
		t.Errorf("dlq jobId = %s, want %s", entries[0].JobID, j.ID)
	}
}

func TestExecutor_PermanentErrorSkipsRetries(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("plan", "",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			return struct{}{}, maestro.Permanent(errors.New("prompt rejected by safety filter"))
		},
	))

	j := claimForTest(t, s, newQueuedJob("plan"))
	e := newTestExecutor(s, reg)

	_ = e.Execute(context.Background(), j)

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want %q: permanent errors must not retry", got.Status, job.StatusFailed)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	entries, _ := s.ListDLQ(context.Background(), dlq.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("dlq has %d entries, want 1", len(entries))
	}
	if !entries[0].Permanent {
		t.Error("expected DLQ entry marked permanent")
	}
}

func TestExecutor_NoHandlerFailsPermanently(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	j := claimForTest(t, s, newQueuedJob("unknown"))
	e := newTestExecutor(s, reg)

	err := e.Execute(context.Background(), j)
	if !errors.Is(err, maestro.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, job.StatusFailed)
	}

	entries, _ := s.ListDLQ(context.Background(), dlq.ListOpts{})
	if len(entries) != 1 || !entries[0].Permanent {
		t.Fatalf("expected one permanent DLQ entry, got %+v", entries)
	}
}

func TestExecutor_CircuitOpenFailsFastWithoutHandler(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	invoked := false
	job.RegisterDefinition(reg, job.NewDefinition("vocals", "bark",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			invoked = true
			return struct{}{}, nil
		},
	))

	cfg := breaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = time.Hour
	breakers := breaker.NewRegistry(cfg, nil)

	// Trip the bark breaker.
	_ = breakers.Get("bark").Execute(context.Background(), func(context.Context) error {
		return errors.New("engine down")
	})

	j := claimForTest(t, s, newQueuedJob("vocals"))
	e := newTestExecutor(s, reg, worker.WithBreakers(breakers))

	err := e.Execute(context.Background(), j)
	if !errors.Is(err, maestro.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("handler must not run while the circuit is open")
	}

	// A rejected attempt is transient: the job waits in the queue.
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusQueued {
		t.Errorf("status = %q, want %q", got.Status, job.StatusQueued)
	}
}

func TestExecutor_PopulatesResultCache(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("audio", "riffusion",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct {
			URL string `json:"url"`
		}, error) {
			return struct {
				URL string `json:"url"`
			}{URL: "assets/track.wav"}, nil
		},
	))

	base := newQueuedJob("audio")
	base.CacheKey = "audio:deadbeef"
	j := claimForTest(t, s, base)
	e := newTestExecutor(s, reg, worker.WithResultCache(s, time.Hour))

	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("execute error: %v", err)
	}

	entry, err := s.GetEntry(context.Background(), "audio:deadbeef")
	if err != nil {
		t.Fatalf("expected cache hit after success: %v", err)
	}
	if want := `{"url":"assets/track.wav"}`; string(entry.Result) != want {
		t.Errorf("cached result = %s, want %s", entry.Result, want)
	}
}

func TestExecutor_LateResultOnCancelledJobDiscarded(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("video", "wav2lip",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			return struct{}{}, nil
		},
	))

	j := claimForTest(t, s, newQueuedJob("video"))

	// The caller cancels while the handler is "running".
	if _, err := s.CancelJob(context.Background(), j.ID); err != nil {
		t.Fatalf("cancel job: %v", err)
	}

	e := newTestExecutor(s, reg)
	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("late result should be discarded silently, got %v", err)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, job.StatusCancelled)
	}
	if got.Result != nil {
		t.Error("cancelled job must not receive a result")
	}
}

func TestExecutor_MiddlewareRecoversPanic(t *testing.T) {
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("mix", "",
		func(_ context.Context, _ struct{}, _ job.ProgressFunc) (struct{}, error) {
			panic("mixer exploded")
		},
	))

	base := newQueuedJob("mix")
	base.MaxAttempts = 1
	j := claimForTest(t, s, base)
	e := newTestExecutor(s, reg, worker.WithMiddleware(middleware.Recover(slog.Default())))

	if err := e.Execute(context.Background(), j); err == nil {
		t.Fatal("expected panic to surface as an error")
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, job.StatusFailed)
	}
}
