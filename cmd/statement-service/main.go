// Command statement-service serves the statement builder over HTTP.
//
// Configuration comes from SB_* environment variables and an optional YAML
// file named by SB_CONFIG_FILE. Indicator defaults are kept in memory,
// Redis or Postgres (SB_SETTINGS_STORE); drafts need SB_DATABASE_URL.
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

	"github.com/redis/go-redis/v9"

	"github.com/algomatic/statement-builder/internal/config"
	"github.com/algomatic/statement-builder/internal/db"
	"github.com/algomatic/statement-builder/internal/redisbus"
	"github.com/algomatic/statement-builder/internal/repository"
	"github.com/algomatic/statement-builder/pkg/api"
	"github.com/algomatic/statement-builder/pkg/builder"
	"github.com/algomatic/statement-builder/pkg/indicators"
	"github.com/algomatic/statement-builder/pkg/session"
	"github.com/algomatic/statement-builder/pkg/settings"
	"github.com/algomatic/statement-builder/pkg/submit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	logger.Info("Starting statement-service",
		"version", cfg.Version,
		"addr", cfg.HTTP.Addr,
		"backend_url", cfg.Backend.URL,
		"settings_store", cfg.Builder.SettingsStore,
	)

	// Set up graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store settings.Store = settings.NewMemoryStore()

	// Postgres: drafts and, optionally, indicator defaults.
	var drafts api.DraftStore
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns, logger)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repository.EnsureSchema(ctx, pool); err != nil {
			logger.Error("Failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		drafts = repository.NewDraftRepo(pool, logger)
		if cfg.Builder.SettingsStore == config.StorePostgres {
			store = repository.NewSettingsRepo(pool, logger)
		}
	}

	// Redis: lifecycle events and, optionally, indicator defaults.
	var bus *redisbus.Bus
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		bus = redisbus.NewBus(client, cfg.Redis.Prefix, logger)
		if err := bus.HealthCheck(ctx); err != nil {
			logger.Error("Redis health check failed", "error", err)
			os.Exit(1)
		}
		if cfg.Builder.SettingsStore == config.StoreRedis {
			store = settings.NewRedisStore(client, cfg.Redis.Prefix, logger)
		}
	}

	submitter := submit.NewClient(cfg.Backend.URL, &submit.Config{
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		Logger:     logger,
	})

	b := builder.New(indicators.NewResolver(nil), &builder.Options{
		DefaultTimeframe: cfg.Builder.DefaultTimeframe,
		ResetTimeframe:   cfg.Builder.ResetTimeframe,
		Logger:           logger,
	})

	srv := api.NewServer(session.NewTracker(logger, cfg.Version), b, store, submitter, logger)
	if drafts != nil {
		srv.Drafts = drafts
	}
	if bus != nil {
		srv.Events = bus
		go func() {
			err := bus.Listen(ctx, nil, srv.HandleStatementEvent,
				redisbus.EventStatementSubmitted, redisbus.EventStatementEdited)
			if err != nil {
				logger.Error("Statement event listener stopped", "error", err)
			}
		}()
	}
	srv.MaxCombinations = cfg.Builder.MaxCombinations
	srv.BackendConnected = probeBackend(ctx, submitter, logger)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, draining connections...")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
}

// probeBackend reports whether the persistence service answers. The service
// starts either way; submissions fail until the backend is reachable.
func probeBackend(ctx context.Context, c *submit.Client, logger *slog.Logger) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.ListStatements(probeCtx, ""); err != nil {
		logger.Warn("Backend not reachable at startup", "error", err)
		return false
	}
	return true
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
