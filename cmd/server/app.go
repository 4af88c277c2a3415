package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-engine/internal/config"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/events"
	"github.com/phrazzld/scry-engine/internal/lock"
	"github.com/phrazzld/scry-engine/internal/platform/gemini"
	"github.com/phrazzld/scry-engine/internal/platform/metrics"
	"github.com/phrazzld/scry-engine/internal/platform/postgres"
	"github.com/phrazzld/scry-engine/internal/platform/telemetry"
	"github.com/phrazzld/scry-engine/internal/service/auth"
	"github.com/phrazzld/scry-engine/internal/service/generation"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/task"
)

// application holds the process-wide dependencies and releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	metrics    *metrics.Metrics
	jwt        auth.JWTService
	locks      *lock.Service
	failures   *task.FailureCache
	scheduler  *task.Scheduler
	reviews    *review.Service
	generation *generation.Service

	// closers run in reverse order during cleanup.
	closers []func(ctx context.Context) error
}

// newApplication wires every component from cfg. On error, whatever was
// already opened is closed before returning.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			_ = app.cleanup(context.Background())
		}
	}()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	app.onClose(shutdownTracing)

	app.db, err = openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return app.db.Close() })

	lockStore, closeLocks, err := openLockStore(ctx, cfg.Lock, app.db, log)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return closeLocks() })
	app.locks = lock.NewService(lockStore, cfg.Lock.TTL(), log, lock.WithMetrics(app.metrics))

	emitter, err := app.newEmitter(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.SRS.Location()
	if err != nil {
		return nil, err
	}
	srsService, err := srs.NewServiceWithParams(srs.NewDefaultParams(), loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create srs service: %w", err)
	}
	today := func() time.Time { return srsService.Today(time.Now()) }

	generator, err := gemini.New(ctx, cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	subjects := postgres.NewPostgresSubjectStore(app.db, log)
	content := postgres.NewPostgresContentStore(app.db, log)
	reviewStore := postgres.NewPostgresReviewStore(app.db, log)

	app.failures = task.NewFailureCache(cfg.Task.FailureRetention(), cfg.Task.FailureMaxRecords, app.metrics)
	app.scheduler = task.NewScheduler(
		task.Config{
			Concurrency: cfg.Task.Concurrency,
			Timeout:     cfg.Task.Timeout(),
			MaxQueued:   cfg.Task.MaxQueued,
		},
		app.failures,
		log,
		task.WithEmitter(emitter),
		task.WithMetrics(app.metrics),
		task.WithHandler(task.KindContentGeneration, task.NewContentGenerationHandler(
			subjects, content, app.locks, generator,
			task.ContentGenerationConfig{
				LockTTL:         cfg.Lock.TTL(),
				RatePerMinute:   cfg.Task.GenerationRatePerMinute,
				DefaultQuantity: cfg.LLM.DefaultQuantity,
				Today:           today,
			},
			log,
		)),
		task.WithHandler(task.KindCacheWarmup, task.NewCacheWarmupHandler(reviewStore, today, log)),
	)
	app.onClose(app.scheduler.Stop)

	app.reviews = review.NewService(app.db, reviewStore, srsService, log, review.WithMetrics(app.metrics))
	app.generation = generation.NewService(app.scheduler, app.locks, app.failures, log)

	app.jwt, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	log.Info("application initialized",
		slog.String("lock_owner", app.locks.OwnerToken()),
		slog.String("srs_timezone", loc.String()))
	return app, nil
}

// newEmitter builds the task event emitter, fanning out to Redis when configured.
func (app *application) newEmitter(ctx context.Context) (*events.InMemoryEventEmitter, error) {
	emitter := events.NewInMemoryEventEmitter(app.logger)
	if app.config.Redis.Addr == "" {
		return emitter, nil
	}
	client, err := events.Dial(ctx, app.config.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.onClose(func(context.Context) error { return client.Close() })
	emitter.RegisterHandler(events.NewRedisPublisher(client, app.config.Redis.Channel, app.logger))
	app.logger.Info("publishing task events to redis",
		slog.String("addr", app.config.Redis.Addr),
		slog.String("channel", app.config.Redis.Channel))
	return emitter, nil
}

func (app *application) onClose(fn func(ctx context.Context) error) {
	app.closers = append(app.closers, fn)
}

// cleanup releases resources in reverse acquisition order and returns
// every error encountered.
func (app *application) cleanup(ctx context.Context) error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("cleanup finished with errors", slog.String("error", err.Error()))
		return err
	}
	return nil
}
