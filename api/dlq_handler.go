package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/musewave/maestro/dlq"
	"github.com/musewave/maestro/id"
)

func (a *API) listDLQ(c *fiber.Ctx) error {
	entries, err := a.eng.DLQService().DLQStore().ListDLQ(c.Context(), dlq.ListOpts{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
		Type:   c.Query("type"),
	})
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (a *API) getDLQ(c *fiber.Ctx) error {
	entryID, err := id.ParseDLQID(c.Params("entryId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid DLQ entry ID")
	}

	entry, err := a.eng.DLQService().DLQStore().GetDLQ(c.Context(), entryID)
	if err != nil {
		return err
	}
	return c.JSON(entry)
}

func (a *API) replayDLQ(c *fiber.Ctx) error {
	entryID, err := id.ParseDLQID(c.Params("entryId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid DLQ entry ID")
	}

	j, err := a.eng.DLQService().Replay(c.Context(), entryID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(j.View())
}

// purgeDLQ removes entries older than the given number of days
// (default 30).
func (a *API) purgeDLQ(c *fiber.Ctx) error {
	days := c.QueryInt("olderThanDays", 30)
	if days < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "olderThanDays must be positive")
	}
	before := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	n, err := a.eng.DLQService().DLQStore().PurgeDLQ(c.Context(), before)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"purged": n})
}
