package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
)

// EnqueueRequest is the body of POST /v1/jobs.
type EnqueueRequest struct {
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params"`
	DedupeKey   string          `json:"dedupeKey,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	DelayMs     int64           `json:"delayMs,omitempty"`
}

// EnqueueResponse reports what the engine did with the request.
type EnqueueResponse struct {
	Job    *job.StatusView `json:"job,omitempty"`
	Reused bool            `json:"reused"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (a *API) enqueueJob(c *fiber.Ctx) error {
	var req EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	opts := []job.Option{}
	if req.DedupeKey != "" {
		opts = append(opts, job.WithDedupeKey(req.DedupeKey))
	}
	if req.Priority != 0 {
		opts = append(opts, job.WithPriority(req.Priority))
	}
	if req.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(req.MaxAttempts))
	}
	if req.DelayMs > 0 {
		opts = append(opts, job.WithDelay(time.Duration(req.DelayMs)*time.Millisecond))
	}
	if cred := credentialFrom(c); cred != nil {
		opts = append(opts, job.WithCredential(cred.ID))
	}

	res, err := a.eng.EnqueueRaw(c.Context(), req.Type, req.Params, opts...)
	if err != nil {
		return err
	}

	out := EnqueueResponse{Reused: res.Reused, Result: res.CachedResult}
	status := fiber.StatusAccepted
	if res.Job != nil {
		view := res.Job.View()
		out.Job = &view
	}
	if res.Reused && res.Job == nil {
		// Cache hit: the result is final, nothing was scheduled.
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(out)
}

func (a *API) getJob(c *fiber.Ctx) error {
	jobID, err := id.ParseJobID(c.Params("jobId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID")
	}

	view, err := a.eng.Status(c.Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (a *API) cancelJob(c *fiber.Ctx) error {
	jobID, err := id.ParseJobID(c.Params("jobId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID")
	}

	j, err := a.eng.Cancel(c.Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(j.View())
}

func (a *API) listJobs(c *fiber.Ctx) error {
	status := job.Status(c.Query("status", string(job.StatusQueued)))
	switch status {
	case job.StatusQueued, job.StatusRunning, job.StatusSucceeded,
		job.StatusFailed, job.StatusCancelled:
	default:
		return maestro.Validationf("status", "unknown status %q", status)
	}

	jobs, err := a.eng.JobStore().ListJobsByStatus(c.Context(), status, job.ListOpts{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
		Type:   c.Query("type"),
	})
	if err != nil {
		return err
	}

	views := make([]job.StatusView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return c.JSON(views)
}

func (a *API) jobCounts(c *fiber.Ctx) error {
	counts := make(map[string]int64, 5)
	for _, status := range []job.Status{
		job.StatusQueued, job.StatusRunning, job.StatusSucceeded,
		job.StatusFailed, job.StatusCancelled,
	} {
		n, err := a.eng.JobStore().CountJobs(c.Context(), job.CountOpts{
			Status: status,
			Type:   c.Query("type"),
		})
		if err != nil {
			return err
		}
		counts[string(status)] = n
	}
	return c.JSON(counts)
}
