package maestro

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently
	// across all types.
	Concurrency int

	// Types is the list of job types this orchestrator will claim.
	// Empty means every type with a registered handler.
	Types []string

	// PollInterval is how often idle workers poll for claimable jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running jobs renew their lease.
	HeartbeatInterval time.Duration

	// LeaseDuration is how long a claimed job may go without a heartbeat
	// before it is considered stalled and eligible for reclaim.
	LeaseDuration time.Duration

	// TerminalGrace is how long progress subscribers are given to drain a
	// terminal event before the job's topic is closed.
	TerminalGrace time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       8,
		PollInterval:      time.Second,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		LeaseDuration:     45 * time.Second,
		TerminalGrace:     5 * time.Second,
	}
}
