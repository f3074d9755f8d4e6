// Package stream provides the real-time progress broker. It bridges the
// ext.Extension system to connected clients via topic-based pub/sub.
//
// Ordering is per job: events for one job are delivered to each
// subscriber in publish order. No ordering is implied across jobs. After
// a job's terminal event, its subscribers get a grace period to drain
// before the topic is torn down, bounding memory growth.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobCancelled EventType = "job.cancelled"
	EventJobDLQ       EventType = "job.dlq"
)

// Terminal reports whether the event ends its job's stream. After a
// terminal event the job topic is closed once the grace period elapses.
func (t EventType) Terminal() bool {
	switch t {
	case EventJobCompleted, EventJobFailed, EventJobCancelled:
		return true
	}
	return false
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID       string          `json:"jobId"`
	JobType     string          `json:"jobType"`
	Progress    float64         `json:"progress,omitempty"`
	Stage       string          `json:"stage,omitempty"`
	Success     bool            `json:"success,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempt     int             `json:"attempt,omitempty"`
	AvailableAt string          `json:"availableAt,omitempty"`
	ElapsedMs   int64           `json:"elapsedMs,omitempty"`
}
