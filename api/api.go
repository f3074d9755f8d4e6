// Package api exposes the orchestrator over HTTP: enqueueing
// generation requests, polling job status, cancelling, inspecting and
// replaying the dead letter queue, prompt suggestions, and operational
// stats.
package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/engine"
	"github.com/musewave/maestro/musegen"
)

// API wires the HTTP handlers over an Engine.
type API struct {
	eng      *engine.Engine
	resolver auth.Resolver
	suggest  *musegen.Client
	assetDir string
	logger   *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithResolver enables authentication: every /v1 route requires a token
// the resolver accepts, and enqueued jobs are attributed to the
// resolved credential.
func WithResolver(r auth.Resolver) Option {
	return func(a *API) { a.resolver = r }
}

// WithSuggestClient enables the /v1/suggest endpoint.
func WithSuggestClient(c *musegen.Client) Option {
	return func(a *API) { a.suggest = c }
}

// WithAssetDir serves generated media under /assets.
func WithAssetDir(dir string) Option {
	return func(a *API) { a.assetDir = dir }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// App returns the assembled Fiber application with all routes.
func (a *API) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "maestro",
		DisableStartupMessage: true,
		ErrorHandler:          a.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/healthz", a.health)
	if a.assetDir != "" {
		app.Static("/assets", a.assetDir)
	}

	v1 := app.Group("/v1")
	if a.resolver != nil {
		v1.Use(a.authenticate)
	}

	v1.Post("/jobs", a.enqueueJob)
	v1.Get("/jobs/counts", a.jobCounts)
	v1.Get("/jobs/:jobId", a.getJob)
	v1.Post("/jobs/:jobId/cancel", a.cancelJob)
	v1.Get("/jobs", a.listJobs)

	v1.Get("/dlq", a.listDLQ)
	v1.Get("/dlq/:entryId", a.getDLQ)
	v1.Post("/dlq/:entryId/replay", a.replayDLQ)
	v1.Delete("/dlq", a.purgeDLQ)

	v1.Post("/suggest", a.suggestHandler)
	v1.Get("/stats", a.stats)

	return app
}

func (a *API) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// errorHandler maps domain errors onto HTTP statuses so handlers can
// return errors from the engine and stores directly.
func (a *API) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	code := fiber.StatusInternalServerError
	switch {
	case maestro.IsValidation(err):
		code = fiber.StatusBadRequest
	case errors.Is(err, maestro.ErrNoHandler):
		code = fiber.StatusBadRequest
	case errors.Is(err, maestro.ErrJobNotFound), errors.Is(err, maestro.ErrDLQNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, maestro.ErrCredentialNotFound):
		code = fiber.StatusUnauthorized
	case errors.Is(err, maestro.ErrRateLimited):
		code = fiber.StatusTooManyRequests
	case errors.Is(err, maestro.ErrJobTerminal), errors.Is(err, maestro.ErrJobAlreadyExists):
		code = fiber.StatusConflict
	case errors.Is(err, maestro.ErrCircuitOpen):
		code = fiber.StatusServiceUnavailable
	}

	if code == fiber.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		return c.Status(code).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
