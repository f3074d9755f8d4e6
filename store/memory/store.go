// Package memory provides a fully in-memory implementation of
// store.Store. Safe for concurrent access. Intended for unit testing and
// development; a single mutex serializes claims, which makes the
// no-double-dispatch guarantee trivial.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/cache"
	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store   = (*Store)(nil)
	_ dlq.Store   = (*Store)(nil)
	_ cache.Store = (*Store)(nil)
	_ auth.Store  = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Job
	dlqs    map[string]*dlq.Entry
	entries map[string]*cache.Entry
	creds   map[string]*auth.Credential
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		dlqs:    make(map[string]*dlq.Entry),
		entries: make(map[string]*cache.Entry),
		creds:   make(map[string]*auth.Credential),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in queued state.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return maestro.ErrJobAlreadyExists
	}
	// At most one non-terminal job may hold a dedupe key. Postgres
	// enforces this with a partial unique index; the scan under the
	// store mutex is the memory equivalent.
	if j.DedupeKey != "" {
		for _, existing := range m.jobs {
			if existing.DedupeKey == j.DedupeKey && !existing.Status.Terminal() {
				return maestro.ErrJobAlreadyExists
			}
		}
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// ClaimJobs atomically claims up to limit eligible queued jobs of the
// given types and transitions them to running under the worker's lease.
func (m *Store) ClaimJobs(_ context.Context, types []string, limit int, workerID id.WorkerID) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != job.StatusQueued {
			continue
		}
		if !j.AvailableAt.IsZero() && j.AvailableAt.After(now) {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[j.Type]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// Priority descending, then availability, then creation order.
	sort.Slice(candidates, func(a, b int) bool {
		ja, jb := candidates[a], candidates[b]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		if !ja.AvailableAt.Equal(jb.AvailableAt) {
			return ja.AvailableAt.Before(jb.AvailableAt)
		}
		return ja.CreatedAt.Before(jb.CreatedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*job.Job, 0, len(candidates))
	for _, j := range candidates {
		j.Status = job.StatusRunning
		j.WorkerID = workerID
		j.Attempts++
		hb := now
		j.HeartbeatAt = &hb
		if j.StartedAt == nil {
			st := now
			j.StartedAt = &st
		}
		j.Touch()
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, maestro.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// FindJobByDedupeKey returns the non-terminal job holding the given key.
func (m *Store) FindJobByDedupeKey(_ context.Context, key string) (*job.Job, error) {
	if key == "" {
		return nil, maestro.ErrJobNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, j := range m.jobs {
		if j.DedupeKey == key && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, maestro.ErrJobNotFound
}

// CompleteJob transitions a running job to succeeded with its result.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return maestro.ErrJobNotFound
	}
	if j.Status.Terminal() {
		// Late result from a cancelled or already-finished job: discard.
		return maestro.ErrJobTerminal
	}

	now := time.Now().UTC()
	j.Status = job.StatusSucceeded
	j.Result = result
	j.LastError = ""
	j.CompletedAt = &now
	j.WorkerID = id.Nil
	j.HeartbeatAt = nil
	j.Touch()
	return nil
}

// FailJob records a failure: requeue with backoff when retry is true,
// terminal failed otherwise.
func (m *Store) FailJob(_ context.Context, jobID id.JobID, errMsg string, retry bool, availableAt time.Time, backoff time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return maestro.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return maestro.ErrJobTerminal
	}

	j.LastError = errMsg
	j.WorkerID = id.Nil
	j.HeartbeatAt = nil

	if retry {
		j.Status = job.StatusQueued
		j.AvailableAt = availableAt
		j.Backoff = backoff
	} else {
		now := time.Now().UTC()
		j.Status = job.StatusFailed
		j.CompletedAt = &now
	}
	j.Touch()
	return nil
}

// CancelJob marks a job cancelled. Running jobs stay assigned until the
// executor observes the cancellation; their eventual result is discarded
// because CompleteJob refuses terminal jobs.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, maestro.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return nil, maestro.ErrJobTerminal
	}

	now := time.Now().UTC()
	j.Status = job.StatusCancelled
	j.CompletedAt = &now
	j.Touch()
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return maestro.ErrJobNotFound
	}
	j.Touch()
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// RequeueJob returns a running job to the queue, refunding the attempt
// its claim consumed. The status and worker guards keep the reaper from
// resurrecting a job that finished or was cancelled after its snapshot.
func (m *Store) RequeueJob(_ context.Context, jobID id.JobID, fromWorker id.WorkerID, availableAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return maestro.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return maestro.ErrJobTerminal
	}
	if j.Status != job.StatusRunning || j.WorkerID != fromWorker {
		return maestro.ErrJobNotFound
	}

	j.Status = job.StatusQueued
	j.AvailableAt = availableAt
	if j.Attempts > 0 {
		j.Attempts--
	}
	j.WorkerID = id.Nil
	j.HeartbeatAt = nil
	j.Touch()
	return nil
}

// HeartbeatJob renews the lease on a running job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return maestro.ErrJobNotFound
	}
	if j.Status != job.StatusRunning || j.WorkerID != workerID {
		return maestro.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	return nil
}

// ReapStaleJobs returns running jobs whose lease heartbeat is older than
// the threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.Status != job.StatusRunning {
			continue
		}
		if j.HeartbeatAt == nil || j.HeartbeatAt.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		n++
	}
	return n, nil
}

// DeleteJobsBefore removes terminal jobs completed before the cutoff.
func (m *Store) DeleteJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, j := range m.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(m.jobs, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, most recent
// failure first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Type != "" && e.JobType != opts.Type {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].FailedAt.After(matched[b].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, maestro.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return maestro.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Cache Store
// ──────────────────────────────────────────────────

// GetEntry returns the live cache entry for key. Expired entries are
// removed lazily and reported as a miss.
func (m *Store) GetEntry(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, maestro.ErrCacheMiss
	}
	if e.Expired(time.Now().UTC()) {
		delete(m.entries, key)
		return nil, maestro.ErrCacheMiss
	}
	cp := *e
	return &cp, nil
}

// SetEntry stores a result under key with the given TTL.
func (m *Store) SetEntry(_ context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	e := &cache.Entry{
		Key:       key,
		Result:    result,
		CreatedAt: now,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// DeleteExpiredEntries removes entries past their TTL.
func (m *Store) DeleteExpiredEntries(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for key, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Credential Store
// ──────────────────────────────────────────────────

// CreateCredential persists a new credential.
func (m *Store) CreateCredential(_ context.Context, c *auth.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.creds[c.ID.String()] = &cp
	return nil
}

// GetCredential retrieves a credential by ID.
func (m *Store) GetCredential(_ context.Context, credID id.CredentialID) (*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.creds[credID.String()]
	if !ok {
		return nil, maestro.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

// FindCredentialByTokenHash looks up a credential by its token digest.
func (m *Store) FindCredentialByTokenHash(_ context.Context, hash string) (*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.creds {
		if c.TokenHash == hash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, maestro.ErrCredentialNotFound
}

// UpdateCredential persists changes to an existing credential.
func (m *Store) UpdateCredential(_ context.Context, c *auth.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, ok := m.creds[key]; !ok {
		return maestro.ErrCredentialNotFound
	}
	c.Touch()
	cp := *c
	m.creds[key] = &cp
	return nil
}

// ListCredentials returns all credentials.
func (m *Store) ListCredentials(_ context.Context) ([]*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*auth.Credential, 0, len(m.creds))
	for _, c := range m.creds {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}
