// Package main runs the scry-engine HTTP server: the review engine, the
// generation scheduler and the lock sweeper in one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scry-engine/internal/config"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("lock_backend", cfg.Lock.Backend),
		slog.Int("task_concurrency", cfg.Task.Concurrency))

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.serve(ctx)
}
