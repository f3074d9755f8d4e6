// Package backoff provides pluggable retry delay policies for job
// execution. All policies are stateless and safe for concurrent use.
//
// A policy computes the next delay from the previous one, so the
// dispatcher stores only a single duration per job. Every policy here is
// non-decreasing: a sequence of failures never schedules a retry sooner
// than the one before it.
package backoff

import "time"

// Policy computes the delay before the next retry from the delay used for
// the previous retry. prev is zero when scheduling the first retry.
type Policy interface {
	Next(prev time.Duration) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of how many retries
// have already happened.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff policy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Next returns the fixed interval.
func (c *Constant) Next(_ time.Duration) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows the delay by a fixed step each retry.
// Next = min(prev + Step, Max). A zero prev yields Step.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// NewLinear creates a linear backoff policy.
func NewLinear(step, maxDelay time.Duration) *Linear {
	return &Linear{Step: step, Max: maxDelay}
}

// Next returns prev + Step, capped at Max.
func (l *Linear) Next(prev time.Duration) time.Duration {
	d := prev + l.Step
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the previous delay each retry.
// Next = min(prev * 2, Max). A zero prev yields Initial.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff policy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Next returns twice the previous delay, capped at Max.
func (e *Exponential) Next(prev time.Duration) time.Duration {
	if prev <= 0 {
		return e.Initial
	}
	d := prev * 2
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultPolicy returns the policy used by the dispatcher when none is
// configured: Exponential with 2s initial and 5m cap.
func DefaultPolicy() Policy {
	return NewExponential(2*time.Second, 5*time.Minute)
}
