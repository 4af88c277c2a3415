package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
)

// CacheWarmupHandler primes a subject's review queue by counting the items
// due today, so the first review request hits warm pages.
type CacheWarmupHandler struct {
	reviews store.ReviewStore
	today   func() time.Time
	logger  *slog.Logger
}

var _ Handler = (*CacheWarmupHandler)(nil)

// NewCacheWarmupHandler creates the handler. A nil today uses the local calendar day.
func NewCacheWarmupHandler(reviews store.ReviewStore, today func() time.Time, logger *slog.Logger) *CacheWarmupHandler {
	if reviews == nil {
		panic("review store cannot be nil")
	}
	if today == nil {
		today = func() time.Time { return domain.CalendarDay(time.Now(), time.Local) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheWarmupHandler{
		reviews: reviews,
		today:   today,
		logger:  logger.With(slog.String("component", "cache_warmup")),
	}
}

// Handle counts the user's due items for the subject.
func (h *CacheWarmupHandler) Handle(ctx context.Context, t GenerationTask, progress ProgressFunc) (Result, error) {
	if t.SubjectID == nil {
		return Result{}, fmt.Errorf("%w: cache warmup needs a subject", ErrInvalidTask)
	}
	n, err := h.reviews.CountDue(ctx, t.UserID, *t.SubjectID, h.today())
	if err != nil {
		return Result{}, fmt.Errorf("failed to count due items: %w", err)
	}
	progress(100)
	h.logger.DebugContext(ctx, "review queue warmed",
		"subject_id", *t.SubjectID,
		"user_id", t.UserID,
		"due", n)
	return Result{DueCount: n}, nil
}
