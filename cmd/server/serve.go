package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hongminglow/aria-characters/internal/config"
	"github.com/hongminglow/aria-characters/internal/errutil"
	"github.com/hongminglow/aria-characters/internal/logging"
	"github.com/hongminglow/aria-characters/internal/observability"
	"github.com/hongminglow/aria-characters/internal/ratelimit"
	"github.com/hongminglow/aria-characters/internal/server"
	"github.com/hongminglow/aria-characters/internal/storage"
	"github.com/hongminglow/aria-characters/internal/storage/memory"
	"github.com/hongminglow/aria-characters/internal/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Connect to the store, apply migrations and serve the HTTP API until
SIGINT or SIGTERM.`,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logger := logging.SetDefault(serviceName, version, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The listener only starts once the store answers.
	store, err := openStore(ctx, cfg)
	if err != nil {
		errutil.LogError(ctx, logger, "init store failed", err)
		return err
	}
	defer store.Close()

	limiter, closeLimiter, err := openLimiter(cfg, logger)
	if err != nil {
		errutil.LogError(ctx, logger, "init rate limiter failed", err)
		return err
	}
	defer closeLimiter()

	srv, err := server.New(server.Deps{
		Config:  cfg,
		Store:   store,
		Limiter: limiter,
		Metrics: observability.NewMetrics(),
		Logger:  logger,
	})
	if err != nil {
		return oops.Code("SERVER_INIT_FAILED").Wrap(err)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("aria characters API listening", "addr", cfg.HTTPAddress(), "storage", cfg.Storage)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_SERVER_FAILED").With("addr", cfg.HTTPAddress()).Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errutil.LogError(shutdownCtx, logger, "graceful shutdown error", err)
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DatabaseURL:    cfg.DatabaseURL,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return store, nil
}

func openLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("rate limiting disabled; REDIS_URL not set")
		return ratelimit.Nop{}, func() {}, nil
	}
	limiter, err := ratelimit.NewRedis(ratelimit.Config{
		URL:      cfg.RedisURL,
		Attempts: cfg.RateLimitAttempts,
		Window:   cfg.RateLimitWindow,
	})
	if err != nil {
		return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
	}
	return limiter, func() {
		if err := limiter.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}, nil
}
