// Package main is the entrypoint for the podcast generation API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/admission"
	"github.com/kiranshivaraju/podcastgate/internal/api"
	"github.com/kiranshivaraju/podcastgate/internal/api/handler"
	mw "github.com/kiranshivaraju/podcastgate/internal/api/middleware"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/cache"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/credentials"
	"github.com/kiranshivaraju/podcastgate/internal/generation"
	"github.com/kiranshivaraju/podcastgate/internal/notify"
	"github.com/kiranshivaraju/podcastgate/internal/queue"
	"github.com/kiranshivaraju/podcastgate/internal/ratelimit"
	"github.com/kiranshivaraju/podcastgate/internal/results"
	"github.com/kiranshivaraju/podcastgate/internal/retention"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	})))
	slog.Info("config loaded",
		"text_provider", cfg.Generation.TextProvider,
		"env", cfg.Server.Env,
		"workers", cfg.Worker.Count,
		"queue_capacity", cfg.Queue.Capacity,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// 2. Start workers and the retention sweeper. Workers stop only through pool.Shutdown
	// below so that a signal drains in-flight jobs instead of aborting them.
	if err := a.pool.Start(context.Background()); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown: stop admitting, then drain the workers within the same budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	stopSweep()
	if err := a.pool.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the fully wired service.
type app struct {
	router  http.Handler
	pool    *worker.Pool
	sweeper *retention.Sweeper
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends and builds the router. Postgres and Redis are
// used when their URLs are set; otherwise the in-process implementations are.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := newStore(ctx, cfg.Database, a)
	if err != nil {
		return nil, err
	}
	limiter, err := newLimiter(ctx, cfg.Redis, a)
	if err != nil {
		return nil, err
	}

	keyring, err := credentials.NewKeyring(cfg.Auth.Keys, credentials.WithCost(cfg.Auth.BcryptCost))
	if err != nil {
		return nil, fmt.Errorf("build keyring: %w", err)
	}
	slog.Info("api keys loaded", "count", len(cfg.Auth.Keys))

	providers, err := generation.NewProviders(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("create generation providers: %w", err)
	}
	slog.Info("generation providers initialized", "script", providers.Script.Name())

	artifacts, err := artifact.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create artifact store: %w", err)
	}
	slog.Info("artifact store ready", "backend", cfg.Storage.Backend)

	q := queue.New(cfg.Queue.Capacity)
	res := results.NewServer(st, artifacts,
		results.WithBaseURL(cfg.Server.PublicBaseURL),
		results.WithLimiter(limiter),
	)
	webhooks := notify.NewWebhook(res.Links(), nil)

	a.pool = worker.New(worker.ConfigFrom(cfg.Worker, cfg.Server.InputPrecedence),
		st, q, providers, artifacts, worker.WithNotifier(webhooks))
	a.sweeper = retention.New(cfg.Retention, st, artifacts,
		retention.WithNotifier(webhooks),
		retention.WithPending(q),
	)

	gate := admission.NewGate(keyring, limiter, st, q,
		admission.WithFailOpen(cfg.Auth.FailOpen),
		admission.WithPrecedence(cfg.Server.InputPrecedence),
		admission.WithTTSModels(providers.Supports),
	)

	a.router = api.NewRouter(api.Dependencies{
		Auth: mw.NewAuth(keyring),

		HealthHandler: handler.NewHealthHandler(),
		ReadyHandler: handler.NewReadyHandler(map[string]handler.Pinger{
			"store":     st,
			"limiter":   limiter,
			"artifacts": artifacts,
		}),
		AudioHandler:      handler.NewAudioHandler(res),
		TranscriptHandler: handler.NewTranscriptHandler(res),

		GenerateHandler: handler.NewGenerateHandler(gate),
		GetJobHandler:   handler.NewGetJobHandler(res),
		ListJobsHandler: handler.NewListJobsHandler(res),
		StatsHandler:    handler.NewStatsHandler(res),

		LegacySubmitHandler: handler.NewLegacySubmitHandler(gate),
		LegacyResultHandler: handler.NewLegacyResultHandler(res),
	})
	return a, nil
}

func newStore(ctx context.Context, cfg config.DatabaseConfig, a *app) (store.Store, error) {
	if cfg.URL == "" {
		slog.Warn("DATABASE_URL not set, jobs are kept in memory")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")
	return store.NewPostgresStore(pool), nil
}

func newLimiter(ctx context.Context, cfg config.RedisConfig, a *app) (ratelimit.Limiter, error) {
	if cfg.URL == "" {
		slog.Warn("REDIS_URL not set, rate limits are kept in memory")
		return ratelimit.NewMemoryLimiter(), nil
	}

	redisCache, err := cache.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { redisCache.Close() })
	slog.Info("redis connected")
	return ratelimit.NewRedisLimiter(redisCache.Client()), nil
}
