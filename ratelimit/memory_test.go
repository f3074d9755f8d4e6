package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/musewave/maestro/clock"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/ratelimit"
)

func TestMemoryLimiter_LimitEnforced(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC))
	l := ratelimit.NewMemoryLimiter(time.Minute, clk)
	ctx := context.Background()
	cred := id.NewCredentialID()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, cred, 5)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d: remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d, err := l.Allow(ctx, cred, 5)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("6th request in window allowed, want denied")
	}
}

func TestMemoryLimiter_NewWindowResets(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 55, 0, time.UTC))
	l := ratelimit.NewMemoryLimiter(time.Minute, clk)
	ctx := context.Background()
	cred := id.NewCredentialID()

	for i := 0; i < 5; i++ {
		l.Allow(ctx, cred, 5)
	}
	if d, _ := l.Allow(ctx, cred, 5); d.Allowed {
		t.Fatal("over-limit request allowed")
	}

	// Cross into the next minute window.
	clk.Advance(10 * time.Second)

	d, err := l.Allow(ctx, cred, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("first request of new window denied")
	}
	if d.Remaining != 4 {
		t.Errorf("remaining = %d, want 4 (fresh window)", d.Remaining)
	}
}

func TestMemoryLimiter_CredentialsIndependent(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC))
	l := ratelimit.NewMemoryLimiter(time.Minute, clk)
	ctx := context.Background()

	a := id.NewCredentialID()
	b := id.NewCredentialID()

	for i := 0; i < 5; i++ {
		l.Allow(ctx, a, 5)
	}
	if d, _ := l.Allow(ctx, a, 5); d.Allowed {
		t.Fatal("credential a over limit but allowed")
	}
	if d, _ := l.Allow(ctx, b, 5); !d.Allowed {
		t.Fatal("credential b denied by credential a's window")
	}
}

func TestMemoryLimiter_ConcurrentExactCount(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC))
	l := ratelimit.NewMemoryLimiter(time.Minute, clk)
	ctx := context.Background()
	cred := id.NewCredentialID()

	const attempts = 50
	const limit = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, cred, limit)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("allowed = %d, want exactly %d (check-and-increment must be atomic)", allowed, limit)
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC))
	l := ratelimit.NewMemoryLimiter(time.Minute, clk)
	ctx := context.Background()
	cred := id.NewCredentialID()

	l.Allow(ctx, cred, 5)
	clk.Advance(2 * time.Minute)
	l.Sweep()

	// After sweep the next request starts a fresh window.
	d, _ := l.Allow(ctx, cred, 5)
	if !d.Allowed || d.Remaining != 4 {
		t.Fatalf("after sweep: allowed=%v remaining=%d, want fresh window", d.Allowed, d.Remaining)
	}
}
