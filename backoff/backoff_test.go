package backoff_test

import (
	"testing"
	"time"

	"github.com/musewave/maestro/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		got := c.Next(prev)
		if got != 5*time.Second {
			t.Errorf("Next(%v) = %v, want %v", prev, got, 5*time.Second)
		}
		prev = got
	}
}

func TestLinear_GrowsByStep(t *testing.T) {
	l := backoff.NewLinear(time.Second, time.Minute)

	tests := []struct {
		prev time.Duration
		want time.Duration
	}{
		{0, 1 * time.Second},
		{1 * time.Second, 2 * time.Second},
		{2 * time.Second, 3 * time.Second},
		{9 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Next(tt.prev); got != tt.want {
			t.Errorf("Next(%v) = %v, want %v", tt.prev, got, tt.want)
		}
	}
}

func TestLinear_CapsAtMax(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	if got := l.Next(5 * time.Second); got != 5*time.Second {
		t.Errorf("Next(5s) = %v, want %v (capped at Max)", got, 5*time.Second)
	}
	if got := l.Next(time.Minute); got != 5*time.Second {
		t.Errorf("Next(1m) = %v, want %v (capped at Max)", got, 5*time.Second)
	}
}

func TestExponential_DoublesPrevious(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	want := []time.Duration{
		1 * time.Second, // first retry uses Initial
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	prev := time.Duration(0)
	for i, w := range want {
		got := e.Next(prev)
		if got != w {
			t.Errorf("retry %d: Next(%v) = %v, want %v", i+1, prev, got, w)
		}
		prev = got
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Next(8 * time.Second); got != 10*time.Second {
		t.Errorf("Next(8s) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Next(10 * time.Second); got != 10*time.Second {
		t.Errorf("Next(10s) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponential_NeverDecreases(t *testing.T) {
	e := backoff.NewExponential(2*time.Second, 5*time.Minute)

	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		got := e.Next(prev)
		if got < prev {
			t.Fatalf("retry %d: Next(%v) = %v, decreased", i+1, prev, got)
		}
		prev = got
	}
	if prev != 5*time.Minute {
		t.Errorf("after 20 retries delay = %v, want cap %v", prev, 5*time.Minute)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := backoff.DefaultPolicy()
	if p == nil {
		t.Fatal("DefaultPolicy() returned nil")
	}
	if got := p.Next(0); got != 2*time.Second {
		t.Errorf("Next(0) = %v, want 2s", got)
	}
	if got := p.Next(4 * time.Minute); got != 5*time.Minute {
		t.Errorf("Next(4m) = %v, want 5m cap", got)
	}
}
