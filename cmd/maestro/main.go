// Command maestro runs the MuseWave generation orchestrator: worker
// pool, REST API, WebSocket progress server, and retention janitor in
// one process. Configuration comes from the environment; see config.go
// for the full list of variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/api"
	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/engine"
	"github.com/musewave/maestro/janitor"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/musegen"
	"github.com/musewave/maestro/queue"
	"github.com/musewave/maestro/ratelimit"
	"github.com/musewave/maestro/store"
	"github.com/musewave/maestro/store/memory"
	"github.com/musewave/maestro/store/postgres"
	redisstore "github.com/musewave/maestro/store/redis"
	"github.com/musewave/maestro/wsp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("maestro exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	o, err := maestro.New(
		maestro.WithStore(store),
		maestro.WithLogger(logger),
		maestro.WithConcurrency(cfg.Concurrency),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	// ── Engine ───────────────────────────────────

	engOpts := []engine.Option{
		engine.WithQueueConfig(queue.Config{
			Type:           job.TypeVideo,
			MaxConcurrency: cfg.VideoConcurrency,
		}),
	}

	var memLimiter *ratelimit.MemoryLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		engOpts = append(engOpts,
			engine.WithCacheStore(redisstore.NewCache(client)),
			engine.WithRateLimiter(redisstore.NewLimiter(client, cfg.RateWindow, nil)),
		)
		logger.Info("redis wired", slog.String("addr", cfg.RedisAddr))
	} else {
		memLimiter = ratelimit.NewMemoryLimiter(cfg.RateWindow, nil)
		engOpts = append(engOpts, engine.WithRateLimiter(memLimiter))
	}

	eng, err := engine.Build(o, engOpts...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// ── Pipeline handlers ────────────────────────

	assets, err := asset.NewFS(cfg.AssetDir)
	if err != nil {
		return err
	}
	bridge := musegen.NewClient(cfg.BridgeURL, musegen.WithClientLogger(logger))
	musegen.RegisterAll(eng, bridge, assets)

	// ── Transports ───────────────────────────────

	var resolver auth.Resolver
	if len(cfg.JWTSecret) > 0 {
		resolver = auth.NewJWTResolver(cfg.JWTSecret, eng.CredentialStore())
	} else if cfg.RequireAuth {
		resolver = auth.NewStoreResolver(eng.CredentialStore())
	}

	app := api.New(eng,
		api.WithResolver(resolver),
		api.WithSuggestClient(bridge),
		api.WithAssetDir(cfg.AssetDir),
		api.WithLogger(logger),
	).App()
	app.Get("/ws", adaptor.HTTPHandler(wsp.NewServer(eng.Broker(), resolver, wsp.WithLogger(logger))))

	// ── Janitor ──────────────────────────────────

	janOpts := []janitor.Option{
		janitor.WithSchedule(cfg.RetentionSchedule),
		janitor.WithJobRetention(cfg.JobRetention),
		janitor.WithDLQRetention(cfg.DLQRetention),
	}
	if memLimiter != nil {
		janOpts = append(janOpts, janitor.WithSweeper(memLimiter))
	}
	jan, err := janitor.New(store, store, store, eng.Extensions(), logger, janOpts...)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	// ── Lifecycle ────────────────────────────────

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if err := jan.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	logger.Info("maestro started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("store", cfg.Store),
		slog.Int("concurrency", cfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := jan.Stop(shutdownCtx); err != nil {
			logger.Warn("janitor stop", slog.String("error", err.Error()))
		}
		if err := eng.Stop(shutdownCtx); err != nil {
			logger.Warn("engine stop", slog.String("error", err.Error()))
		}
		return app.ShutdownWithContext(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore selects the storage backend. The close function is a no-op
// for the memory store.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("MAESTRO_POSTGRES_DSN is required for the postgres store")
		}
		pg, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, func() { pg.Close() }, nil
	case "memory", "":
		m := memory.New()
		return m, func() { m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
