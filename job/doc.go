// Package job defines the job model, its lifecycle state machine, the
// persistence contract, and the handler registry.
//
// # Lifecycle
//
// A job is created queued with zero attempts. Only the dispatcher mutates
// it afterwards: claim moves it to running under a worker lease,
// completion moves it to a terminal status, and a retryable failure moves
// it back to queued with an incremented attempt count and a pushed-out
// AvailableAt. attempts <= maxAttempts holds at all times, and a job
// reaches exactly one terminal status.
//
// # Handlers
//
// Generation handlers implement a single capability — take params, report
// progress, return a result — and register themselves with the Registry
// at startup. Adding a job type requires no dispatcher changes. Handlers
// signal non-retryable failures by wrapping errors with
// maestro.Permanent; everything else is treated as transient and retried
// with exponential backoff.
//
// Execution is at-least-once: a stalled lease makes the job claimable
// again, so handlers must be idempotent or rely on dedupe keys and the
// result cache to absorb duplicate side effects.
package job
