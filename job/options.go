package job

import (
	"time"

	"github.com/musewave/maestro/id"
)

// Options configures per-job behavior at enqueue time.
type Options struct {
	// MaxAttempts is the total execution budget, first run included.
	MaxAttempts int

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// Timeout is the maximum duration one attempt may run before its
	// context is cancelled.
	Timeout time.Duration

	// Delay postpones the first claim by the given duration.
	Delay time.Duration

	// DedupeKey attaches this request to an existing non-terminal job
	// holding the same key instead of creating a duplicate.
	DedupeKey string

	// CredentialID attributes the job to a caller for admission control.
	CredentialID id.CredentialID

	// ParentID links a pipeline stage to the job that spawned it.
	ParentID id.JobID
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Priority:    0,
		Timeout:     10 * time.Minute,
	}
}

// Option is a functional option for configuring an enqueue.
type Option func(*Options)

// WithMaxAttempts sets the total attempt budget (must be >= 1).
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n >= 1 {
			o.MaxAttempts = n
		}
	}
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum execution duration per attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithDelay postpones the first claim by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) {
		o.Delay = d
	}
}

// WithDedupeKey sets the request fingerprint used for deduplication.
func WithDedupeKey(key string) Option {
	return func(o *Options) {
		o.DedupeKey = key
	}
}

// WithCredential attributes the job to the given credential.
func WithCredential(credID id.CredentialID) Option {
	return func(o *Options) {
		o.CredentialID = credID
	}
}

// WithParent links the job to a parent pipeline stage.
func WithParent(parentID id.JobID) Option {
	return func(o *Options) {
		o.ParentID = parentID
	}
}
