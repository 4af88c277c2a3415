// Package review applies review ratings to flashcards and quiz questions.
// It loads the item's schedule under a row lock, runs it through the SRS
// engine and writes the result back in one transaction.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/platform/metrics"
	"github.com/phrazzld/scry-engine/internal/platform/telemetry"
	"github.com/phrazzld/scry-engine/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common error types for the review service
var (
	// ErrItemNotFound indicates that the item does not exist.
	ErrItemNotFound = errors.New("reviewable item not found")

	// ErrItemNotOwned indicates that the user does not own the item.
	ErrItemNotOwned = errors.New("unauthorized access: item not owned by user")

	// ErrInvalidUpdate indicates a batch entry with an out-of-range schedule.
	ErrInvalidUpdate = errors.New("invalid schedule update")
)

// Outcome is the result of a review. Changed is false when the item had
// already been reviewed today and its schedule was left as it was.
type Outcome struct {
	Item    *domain.ReviewableItem `json:"item"`
	Changed bool                   `json:"changed"`
}

// Service applies reviews to items.
type Service struct {
	db      store.Beginner
	reviews store.ReviewStore
	srs     srs.Service
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics counts reviews by item kind and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the wall clock used to find today.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a review service. It panics on a nil dependency.
func NewService(db store.Beginner, reviews store.ReviewStore, srsService srs.Service, log *slog.Logger, opts ...Option) *Service {
	if db == nil {
		panic("db cannot be nil")
	}
	if reviews == nil {
		panic("review store cannot be nil")
	}
	if srsService == nil {
		panic("srs service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		db:      db,
		reviews: reviews,
		srs:     srsService,
		tracer:  telemetry.Tracer("review"),
		now:     time.Now,
		logger:  log.With(slog.String("component", "review_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReviewItem rates an item owned by userID. A second review on the same
// calendar day returns the stored item unchanged.
func (s *Service) ReviewItem(
	ctx context.Context,
	userID uuid.UUID,
	kind domain.ItemKind,
	itemID uuid.UUID,
	q srs.Quality,
) (*Outcome, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidItemKind, kind)
	}

	ctx, span := s.tracer.Start(ctx, "review.item", trace.WithAttributes(
		attribute.String("item.kind", string(kind)),
		attribute.String("item.id", itemID.String()),
		attribute.Int("review.quality", int(q.Clamp())),
	))
	defer span.End()

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("user_id", userID.String()),
		slog.String("item_id", itemID.String()),
		slog.String("item_kind", string(kind)),
	)
	log.Debug("processing review", slog.String("quality", q.String()))

	var out Outcome
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		repo := s.reviews.WithTx(tx)

		item, err := repo.GetForUpdate(ctx, kind, itemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return fmt.Errorf("failed to load item: %w", err)
		}
		if item.UserID != userID {
			log.Warn("user does not own item", slog.String("owner_id", item.UserID.String()))
			return ErrItemNotOwned
		}

		next, changed := s.srs.Review(item.State, q, s.now())
		out.Changed = changed
		if !changed {
			out.Item = item
			return nil
		}

		if err := repo.SaveState(ctx, kind, itemID, next); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return fmt.Errorf("failed to save review state: %w", err)
		}
		item.State = next
		out.Item = item
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrItemNotOwned) {
			return nil, err
		}
		log.Error("failed to review item", slog.String("error", err.Error()))
		return nil, fmt.Errorf("review failed: %w", err)
	}

	span.SetAttributes(attribute.Bool("review.changed", out.Changed))
	s.metrics.Review(string(kind), out.Changed)
	if out.Changed {
		log.Info("item reviewed",
			slog.Int("interval", out.Item.State.Interval),
			slog.Time("due_date", out.Item.State.DueDate))
	} else {
		log.Debug("item already reviewed today")
	}
	return &out, nil
}

// ReviewQuizAnswer rates a quiz question from whether the chosen answer was correct.
func (s *Service) ReviewQuizAnswer(ctx context.Context, userID, questionID uuid.UUID, correct bool) (*Outcome, error) {
	return s.ReviewItem(ctx, userID, domain.ItemKindQuizQuestion, questionID, srs.QualityFromCorrect(correct))
}

// ApplyBatch writes precomputed schedules for items owned by userID, all or
// nothing. It is meant for the end of a review session.
func (s *Service) ApplyBatch(ctx context.Context, userID uuid.UUID, updates []store.ScheduleUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	for i, u := range updates {
		if err := validateUpdate(u); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
	}

	ctx, span := s.tracer.Start(ctx, "review.batch", trace.WithAttributes(
		attribute.Int("batch.size", len(updates)),
	))
	defer span.End()

	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", userID.String()))

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		repo := s.reviews.WithTx(tx)
		for _, u := range updates {
			if err := repo.ApplySchedule(ctx, userID, u); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: %s %s", ErrItemNotFound, u.Kind, u.ItemID)
				}
				return fmt.Errorf("failed to apply schedule for %s: %w", u.ItemID, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("batch review rolled back", slog.Int("size", len(updates)), slog.String("error", err.Error()))
		return err
	}

	for _, u := range updates {
		s.metrics.Review(string(u.Kind), true)
	}
	log.Info("batch review applied", slog.Int("size", len(updates)))
	return nil
}

func validateUpdate(u store.ScheduleUpdate) error {
	switch {
	case !u.Kind.Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidItemKind, u.Kind)
	case u.ItemID == uuid.Nil:
		return fmt.Errorf("%w: %w", ErrInvalidUpdate, domain.ErrInvalidID)
	case u.Interval < 1:
		return fmt.Errorf("%w: interval %d", ErrInvalidUpdate, u.Interval)
	case u.Easiness < domain.MinEasiness:
		return fmt.Errorf("%w: easiness %.2f", ErrInvalidUpdate, u.Easiness)
	case u.Repetitions < 0:
		return fmt.Errorf("%w: repetitions %d", ErrInvalidUpdate, u.Repetitions)
	case u.DueDate.IsZero():
		return fmt.Errorf("%w: missing due date", ErrInvalidUpdate)
	}
	return nil
}
