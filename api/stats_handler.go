package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/musewave/maestro/breaker"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/musegen"
	"github.com/musewave/maestro/stream"
)

// StatsResponse is the payload of GET /v1/stats.
type StatsResponse struct {
	Jobs     map[string]int64   `json:"jobs"`
	Breakers []breaker.Snapshot `json:"breakers"`
	Stream   stream.BrokerStats `json:"stream"`
}

func (a *API) stats(c *fiber.Ctx) error {
	counts := make(map[string]int64, 5)
	for _, status := range []job.Status{
		job.StatusQueued, job.StatusRunning, job.StatusSucceeded,
		job.StatusFailed, job.StatusCancelled,
	} {
		n, err := a.eng.JobStore().CountJobs(c.Context(), job.CountOpts{Status: status})
		if err != nil {
			return err
		}
		counts[string(status)] = n
	}

	return c.JSON(StatsResponse{
		Jobs:     counts,
		Breakers: a.eng.Breakers().Snapshots(),
		Stream:   a.eng.Broker().Stats(),
	})
}

func (a *API) suggestHandler(c *fiber.Ctx) error {
	if a.suggest == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "suggestions not configured")
	}

	var req musegen.SuggestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	suggestions, err := a.suggest.Suggest(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}
