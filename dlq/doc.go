// Package dlq provides the dead letter queue for jobs that exhausted
// their retry budget or failed permanently. It supports inspection,
// replay, and purging.
//
// When a job fails with no attempts remaining, or the handler signals a
// permanent error, the executor calls [Service.Push] to move it into the
// DLQ. The original params, final error message, and attempt counts are
// preserved for debugging.
//
// # Replay
//
// Replaying an entry re-enqueues the original params as a fresh job with
// a full attempt budget and sets ReplayedAt on the entry. Replay is an
// operator action, exposed through the admin API:
//   - GET  /v1/dlq                 — list entries
//   - GET  /v1/dlq/:entryId        — get a single entry
//   - POST /v1/dlq/:entryId/replay — replay one entry
package dlq
