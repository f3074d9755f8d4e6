package breaker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/breaker"
	"github.com/musewave/maestro/clock"
)

var errEngine = errors.New("engine unavailable")

func testConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: 3,
		FailureRate:      0.5,
		MinSamples:       10,
		Window:           30 * time.Second,
		Buckets:          10,
		ResetTimeout:     15 * time.Second,
		SuccessThreshold: 2,
	}
}

func fail(ctx context.Context) error    { return errEngine }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); !errors.Is(err, errEngine) {
			t.Fatalf("call %d: err = %v, want engine error", i+1, err)
		}
	}

	if got := b.State(); got != breaker.Open {
		t.Fatalf("state = %v, want OPEN", got)
	}

	// Next call must fail fast without invoking the function.
	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, maestro.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Fatal("wrapped function was invoked while breaker open")
	}
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)

	ctx := context.Background()
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	b.Execute(ctx, succeed)
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)

	if got := b.State(); got != breaker.Closed {
		t.Fatalf("state = %v, want CLOSED (no 3 consecutive failures)", got)
	}
}

func TestBreaker_TripsOnFailureRate(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("bark", testConfig(), clk)

	ctx := context.Background()
	// Alternate so the consecutive counter never reaches 3, but the
	// window failure rate reaches 50% with enough samples.
	for i := 0; i < 6; i++ {
		b.Execute(ctx, succeed)
		b.Execute(ctx, fail)
	}

	if got := b.State(); got != breaker.Open {
		t.Fatalf("state = %v, want OPEN (rate tripped)", got)
	}
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)
	ctx := context.Background()

	cancelled := func(ctx context.Context) error {
		return fmt.Errorf("call engine: %w", context.Canceled)
	}

	// Callers abandoning their own attempts say nothing about engine
	// health; no amount of them may trip the breaker.
	for i := 0; i < 20; i++ {
		if err := b.Execute(ctx, cancelled); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want the cancellation passed through", err)
		}
	}
	if got := b.State(); got != breaker.Closed {
		t.Fatalf("state = %v, want CLOSED after cancellations only", got)
	}

	// Real engine failures still count.
	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	if got := b.State(); got != breaker.Open {
		t.Fatalf("state = %v, want OPEN after engine failures", got)
	}
}

func TestBreaker_HalfOpenCancellationReleasesProbe(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	clk.Advance(15 * time.Second)

	// A cancelled trial neither reopens nor closes the breaker, and it
	// must not leave the probe slot stuck.
	if err := b.Execute(ctx, func(ctx context.Context) error {
		return context.Canceled
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("trial: err = %v, want context.Canceled", err)
	}
	if got := b.State(); got != breaker.HalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN after abandoned trial", got)
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("next trial after abandoned one: %v", err)
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	if got := b.State(); got != breaker.Open {
		t.Fatalf("state = %v, want OPEN", got)
	}

	clk.Advance(15 * time.Second)
	if got := b.State(); got != breaker.HalfOpen {
		t.Fatalf("state after reset timeout = %v, want HALF_OPEN", got)
	}

	// A slow trial blocks concurrent callers.
	admitted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(ctx context.Context) error {
			close(admitted)
			<-release
			return nil
		})
	}()

	select {
	case <-admitted:
	case <-time.After(2 * time.Second):
		t.Fatal("trial never admitted")
	}

	if err := b.Execute(ctx, succeed); !errors.Is(err, maestro.ErrCircuitOpen) {
		t.Fatalf("concurrent call during trial: err = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial returned %v", err)
	}
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	clk.Advance(15 * time.Second)

	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("trial 1: %v", err)
	}
	if got := b.State(); got != breaker.HalfOpen {
		t.Fatalf("state after 1 success = %v, want HALF_OPEN", got)
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("trial 2: %v", err)
	}
	if got := b.State(); got != breaker.Closed {
		t.Fatalf("state after 2 successes = %v, want CLOSED", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("riffusion", testConfig(), clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	clk.Advance(15 * time.Second)

	if err := b.Execute(ctx, fail); !errors.Is(err, errEngine) {
		t.Fatalf("trial: err = %v, want engine error", err)
	}
	if got := b.State(); got != breaker.Open {
		t.Fatalf("state after failed trial = %v, want OPEN", got)
	}
	if err := b.Execute(ctx, succeed); !errors.Is(err, maestro.ErrCircuitOpen) {
		t.Fatalf("call after reopen: err = %v, want ErrCircuitOpen", err)
	}
}

func TestRegistry_IndependentBreakers(t *testing.T) {
	clk := clock.NewFake(time.Now())
	reg := breaker.NewRegistry(testConfig(), clk)
	ctx := context.Background()

	riff := reg.Get("riffusion")
	bark := reg.Get("bark")

	for i := 0; i < 3; i++ {
		riff.Execute(ctx, fail)
	}

	if got := riff.State(); got != breaker.Open {
		t.Fatalf("riffusion state = %v, want OPEN", got)
	}
	if got := bark.State(); got != breaker.Closed {
		t.Fatalf("bark state = %v, want CLOSED (breakers independent)", got)
	}

	if reg.Get("riffusion") != riff {
		t.Fatal("Get returned a new instance for existing engine")
	}
}

func TestBreaker_WindowRollsOff(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := breaker.New("wav2lip", testConfig(), clk)
	ctx := context.Background()

	// Two failures, then let the window slide past them entirely.
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	clk.Advance(31 * time.Second)

	snap := b.Snapshot()
	if snap.Failures != 0 {
		t.Fatalf("failures in window = %d, want 0 after roll-off", snap.Failures)
	}
}
