package job

import (
	"encoding/json"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting to be claimed by a worker.
	StatusQueued Status = "queued"
	// StatusRunning means a worker holds the lease and is executing the job.
	StatusRunning Status = "running"
	// StatusSucceeded means the job finished and its result is recorded.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job exhausted its attempts (or failed
	// permanently) and will not run again.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled by the caller.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state. A job reaches exactly one
// terminal status and never leaves it.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Well-known generation job types. The set is open: any string with a
// registered handler is a valid type.
const (
	TypePlan   = "plan"
	TypeAudio  = "audio"
	TypeVocals = "vocals"
	TypeMix    = "mix"
	TypeVideo  = "video"
)

// Job represents one unit of generation work.
type Job struct {
	maestro.Entity

	ID     id.JobID `json:"id"`
	Type   string   `json:"type"`
	Status Status   `json:"status"`

	// Params is the handler-interpreted request payload.
	Params json.RawMessage `json:"params"`

	// Result is present only once the job has succeeded.
	Result json.RawMessage `json:"result,omitempty"`

	// LastError is the most recent failure message; on a FAILED job it is
	// the final error.
	LastError string `json:"lastError,omitempty"`

	Priority    int `json:"priority"`
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"maxAttempts"`

	// AvailableAt gates claiming: a job is eligible only once
	// now >= AvailableAt. Retries push it into the future by the current
	// backoff.
	AvailableAt time.Time `json:"availableAt"`

	// Backoff is the delay applied before the most recent requeue. It is
	// non-decreasing across retries up to the policy cap.
	Backoff time.Duration `json:"backoff,omitempty"`

	// DedupeKey fingerprints the request: at most one non-terminal job may
	// exist per key, and matching enqueues attach to it.
	DedupeKey string `json:"dedupeKey,omitempty"`

	// CacheKey is the normalized content hash used to populate the result
	// cache on success. Internal; not exposed through status responses.
	CacheKey string `json:"cacheKey,omitempty"`

	ParentID     id.JobID        `json:"parentId,omitempty"`
	CredentialID id.CredentialID `json:"credentialId,omitempty"`

	// Lease state. Internal: never surfaced to status callers.
	WorkerID    id.WorkerID `json:"workerId,omitempty"`
	HeartbeatAt *time.Time  `json:"heartbeatAt,omitempty"`

	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// StatusView is the caller-facing projection of a Job: the record fields
// minus lease internals (worker assignment, heartbeat, cache key).
type StatusView struct {
	ID           id.JobID        `json:"id"`
	Type         string          `json:"type"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	AvailableAt  time.Time       `json:"availableAt"`
	ParentID     id.JobID        `json:"parentId,omitempty"`
	CredentialID id.CredentialID `json:"credentialId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// View projects the job into its caller-facing form.
func (j *Job) View() StatusView {
	v := StatusView{
		ID:           j.ID,
		Type:         j.Type,
		Status:       j.Status,
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		AvailableAt:  j.AvailableAt,
		ParentID:     j.ParentID,
		CredentialID: j.CredentialID,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
	if j.Status == StatusSucceeded {
		v.Result = j.Result
	}
	if j.Status == StatusFailed {
		v.Error = j.LastError
	}
	return v
}
