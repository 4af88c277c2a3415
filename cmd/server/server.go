package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

// serve runs the HTTP server and the background sweepers until ctx is
// canceled, then shuts everything down within the configured budget.
func (app *application) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           newRouter(app.routes(), app.logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		app.locks.RunSweeper(gctx, app.config.Lock.SweepInterval())
		return nil
	})
	g.Go(func() error {
		app.failures.RunSweeper(gctx, app.config.Task.FailureSweepInterval(), app.logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
		}
		if err := app.cleanup(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		app.logger.Info("server shutdown completed")
		return errors.Join(errs...)
	})

	return g.Wait()
}
