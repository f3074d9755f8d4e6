package dlq

import (
	"encoding/json"
	"time"

	"github.com/musewave/maestro/id"
)

// Entry records a job that exhausted its retry budget (or failed
// permanently) and was moved to the dead letter queue for inspection or
// operator replay. Entries are never retried automatically.
type Entry struct {
	ID           id.DLQID        `json:"id"`
	JobID        id.JobID        `json:"jobId"`
	JobType      string          `json:"jobType"`
	Params       json.RawMessage `json:"params"`
	Error        string          `json:"error"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	Permanent    bool            `json:"permanent"`
	CredentialID id.CredentialID `json:"credentialId,omitzero"`
	FailedAt     time.Time       `json:"failedAt"`
	ReplayedAt   *time.Time      `json:"replayedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
