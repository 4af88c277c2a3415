package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/api/shared"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/store"
)

// ReviewService is the part of review.Service used by the handler.
type ReviewService interface {
	ReviewItem(ctx context.Context, userID uuid.UUID, kind domain.ItemKind, itemID uuid.UUID, q srs.Quality) (*review.Outcome, error)
	ReviewQuizAnswer(ctx context.Context, userID, questionID uuid.UUID, correct bool) (*review.Outcome, error)
	ApplyBatch(ctx context.Context, userID uuid.UUID, updates []store.ScheduleUpdate) error
}

var _ ReviewService = (*review.Service)(nil)

// ReviewHandler serves review submissions.
type ReviewHandler struct {
	service ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler. It panics on a nil service.
func NewReviewHandler(service ReviewService, log *slog.Logger) *ReviewHandler {
	if service == nil {
		panic("review service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReviewHandler{
		service: service,
		logger:  log.With(slog.String("component", "review_handler")),
	}
}

// ReviewItem handles POST /items/{itemKind}/{itemID}/review.
func (h *ReviewHandler) ReviewItem(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, itemID, ok := handleUserIDAndPathUUID(w, r, "itemID", log)
	if !ok {
		return
	}
	kind, err := domain.ParseItemKind(chi.URLParam(r, "itemKind"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ReviewItemRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	var out *review.Outcome
	if req.Correct != nil {
		if kind != domain.ItemKindQuizQuestion {
			HandleAPIError(w, r, fmt.Errorf("%w: correct applies to quiz questions", domain.ErrValidation),
				"Invalid correct: quiz questions only")
			return
		}
		out, err = h.service.ReviewQuizAnswer(r.Context(), userID, itemID, *req.Correct)
	} else {
		out, err = h.service.ReviewItem(r.Context(), userID, kind, itemID, srs.Quality(*req.Rating))
	}
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, outcomeToResponse(out))
}

// ApplyBatch handles POST /reviews/batch. Either every update is applied or none.
func (h *ReviewHandler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, ErrUnauthorized, "User ID not found or invalid")
		return
	}

	var req BatchReviewRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	updates := make([]store.ScheduleUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		due, err := parseDate(u.DueDate)
		if err != nil {
			HandleAPIError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err), "Invalid due_date")
			return
		}
		updates = append(updates, store.ScheduleUpdate{
			ItemID:      u.ItemID,
			Kind:        domain.ItemKind(u.ItemKind),
			Interval:    u.Interval,
			Easiness:    u.Easiness,
			Repetitions: u.Repetitions,
			DueDate:     due,
		})
	}

	if err := h.service.ApplyBatch(r.Context(), userID, updates); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Debug("batch review applied", slog.Int("size", len(updates)))
	w.WriteHeader(http.StatusNoContent)
}
