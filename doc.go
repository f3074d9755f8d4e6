// Package maestro provides a durable, concurrency-limited job orchestration
// engine for MuseWave's generation pipeline. It coordinates long-running
// generation requests (plan, audio, vocals, mix, video) against slow,
// unreliable external engines while giving callers live progress and
// bounded-wait guarantees.
//
// Maestro is designed as a library, not a service. Import it, configure a
// store, register generation handlers as ordinary Go functions, and start
// the worker pool.
//
// # Quick Start
//
//	orc, err := maestro.New(
//	    maestro.WithStore(pgStore),
//	    maestro.WithConcurrency(8),
//	)
//
// # Architecture
//
// Maestro follows a composable store pattern: the job, dead-letter, and
// result-cache subsystems each define their own store interface, and a
// single backend (memory, Postgres) implements them. Admission control
// (per-credential rate limiting), a content-addressable result cache,
// per-engine circuit breakers, and a topic-keyed progress broker sit
// around a claim/execute worker pool.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package maestro
