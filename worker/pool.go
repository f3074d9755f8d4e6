package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/ext"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// QueueManager controls per-type concurrency and throughput. The pool
// calls Acquire before executing a claimed job and Release afterwards.
type QueueManager interface {
	// Acquire checks concurrency and rate for the job type. Returns true
	// if the job is allowed to proceed now.
	Acquire(jobType string) bool
	// Release decrements the active count for the job type.
	Release(jobType string)
}

// Pool manages a set of concurrent worker goroutines that claim jobs
// and execute them through the Executor. It renews leases on running
// jobs and reclaims jobs whose worker stopped heartbeating.
type Pool struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger

	concurrency  int
	types        []string
	pollInterval time.Duration
	workerID     id.WorkerID

	heartbeatInterval time.Duration
	leaseDuration     time.Duration

	queueManager QueueManager

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolTypes restricts the pool to the given job types. Empty means
// all types.
func WithPoolTypes(types []string) PoolOption {
	return func(p *Pool) { p.types = types }
}

// WithPollInterval sets how often idle workers poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool renews leases on its
// running jobs. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithLeaseDuration sets how long a running job may go without a
// heartbeat before the reaper returns it to the queue. A zero value
// disables reaping.
func WithLeaseDuration(d time.Duration) PoolOption {
	return func(p *Pool) { p.leaseDuration = d }
}

// WithQueueManager sets the queue manager for per-type concurrency and
// throughput control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:             store,
		executor:          executor,
		extensions:        extensions,
		logger:            logger,
		concurrency:       8,
		pollInterval:      time.Second,
		heartbeatInterval: 10 * time.Second,
		leaseDuration:     45 * time.Second,
		workerID:          id.NewWorkerID(),
		stopCh:            make(chan struct{}),
		activeJobs:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("types", p.types),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	if p.leaseDuration > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time
// runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// Cancel interrupts the job if this pool is currently running it.
// Returns true when a running execution was signalled.
func (p *Pool) Cancel(jobID id.JobID) bool {
	p.activeMu.Lock()
	cancel, ok := p.activeJobs[jobID.String()]
	p.activeMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		jobs, err := p.store.ClaimJobs(context.Background(), p.types, 1, p.workerID)
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(jobs) == 0 {
			p.sleep()
			continue
		}

		j := jobs[0]

		if p.queueManager != nil && !p.queueManager.Acquire(j.Type) {
			p.returnJob(j)
			p.sleep()
			continue
		}

		p.extensions.EmitJobStarted(context.Background(), j)

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(j.ID.String(), cancel)

		if execErr := p.executor.Execute(ctx, j); execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(j.ID.String())
		cancel()

		if p.queueManager != nil {
			p.queueManager.Release(j.Type)
		}
	}
}

// returnJob puts a claimed job back in the queue without consuming the
// attempt the claim charged it. The store-side guard means a job the
// caller cancelled in the meantime stays cancelled.
func (p *Pool) returnJob(j *job.Job) {
	availableAt := time.Now().UTC().Add(p.pollInterval)
	if err := p.store.RequeueJob(context.Background(), j.ID, p.workerID, availableAt); err != nil {
		if errors.Is(err, maestro.ErrJobTerminal) {
			return
		}
		p.logger.Error("failed to return throttled job to queue",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop periodically renews leases for all active jobs.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	for _, jobIDStr := range jobIDs {
		parsedID, parseErr := id.ParseJobID(jobIDStr)
		if parseErr != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", jobIDStr))
			continue
		}
		if err := p.store.HeartbeatJob(context.Background(), parsedID, p.workerID); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reaperLoop periodically returns jobs with expired leases to the queue.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.leaseDuration)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapStaleJobs()
		}
	}
}

func (p *Pool) reapStaleJobs() {
	stale, err := p.store.ReapStaleJobs(context.Background(), p.leaseDuration)
	if err != nil {
		p.logger.Error("reap stale jobs error", slog.String("error", err.Error()))
		return
	}

	for _, j := range stale {
		staleWorker := j.WorkerID
		availableAt := time.Now().UTC()

		// The guarded transition refuses jobs that finished, were
		// cancelled, or were re-claimed after the stale snapshot, so a
		// terminal status is never overwritten. The lost attempt is
		// refunded store-side: a crashed worker must not burn the retry
		// budget.
		if requeueErr := p.store.RequeueJob(context.Background(), j.ID, staleWorker, availableAt); requeueErr != nil {
			if errors.Is(requeueErr, maestro.ErrJobTerminal) || errors.Is(requeueErr, maestro.ErrJobNotFound) {
				continue
			}
			p.logger.Error("reap: failed to reset stale job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", requeueErr.Error()),
			)
			continue
		}

		j.Status = job.StatusQueued
		j.AvailableAt = availableAt
		if j.Attempts > 0 {
			j.Attempts--
		}
		j.WorkerID = id.Nil
		j.HeartbeatAt = nil

		p.extensions.EmitJobReclaimed(context.Background(), j, staleWorker)

		p.logger.Info("reclaimed stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("stale_worker", staleWorker.String()),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
