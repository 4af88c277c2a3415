package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/api/shared"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/service/generation"
	"github.com/phrazzld/scry-engine/internal/task"
)

// GenerationService is the part of generation.Service used by the handler.
type GenerationService interface {
	EnqueueGeneration(ctx context.Context, req generation.Request) (*task.Handle, error)
	GetTaskState(subjectID, userID uuid.UUID, kind domain.ContentKind) task.TaskState
	GetLastFailures(subjectID, userID uuid.UUID) generation.Failures
	CancelTask(ctx context.Context, userID, taskID uuid.UUID) error
	CancelOwnSubjectTasks(ctx context.Context, userID, subjectID uuid.UUID) int
	CancelUserTasks(ctx context.Context, userID uuid.UUID) int
	WarmReviewQueue(ctx context.Context, userID, subjectID uuid.UUID) (*task.Handle, error)
}

var _ GenerationService = (*generation.Service)(nil)

// GenerationHandler serves content generation requests and their status.
type GenerationHandler struct {
	service GenerationService
	logger  *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler. It panics on a nil service.
func NewGenerationHandler(service GenerationService, log *slog.Logger) *GenerationHandler {
	if service == nil {
		panic("generation service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &GenerationHandler{
		service: service,
		logger:  log.With(slog.String("component", "generation_handler")),
	}
}

// Enqueue handles POST /subjects/{subjectID}/generations.
func (h *GenerationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, subjectID, ok := handleUserIDAndPathUUID(w, r, "subjectID", log)
	if !ok {
		return
	}

	var req EnqueueGenerationRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}
	kind, err := domain.ParseContentKind(req.ContentKind)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	handle, err := h.service.EnqueueGeneration(r.Context(), generation.Request{
		SubjectID:     subjectID,
		UserID:        userID,
		ContentKind:   kind,
		CollectionID:  req.CollectionID,
		Quantity:      req.Quantity,
		Extra:         req.Extra,
		AutoGenerated: req.AutoGenerated,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("generation accepted",
		slog.String("subject_id", subjectID.String()),
		slog.String("task_id", handle.ID().String()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, EnqueueGenerationResponse{
		TaskID: handle.ID(),
		State:  h.service.GetTaskState(subjectID, userID, kind),
	})
}

// State handles GET /subjects/{subjectID}/generations/{contentKind}.
func (h *GenerationHandler) State(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, subjectID, ok := handleUserIDAndPathUUID(w, r, "subjectID", log)
	if !ok {
		return
	}
	kind, err := domain.ParseContentKind(chi.URLParam(r, "contentKind"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.GetTaskState(subjectID, userID, kind))
}

// Failures handles GET /subjects/{subjectID}/failures.
func (h *GenerationHandler) Failures(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, subjectID, ok := handleUserIDAndPathUUID(w, r, "subjectID", log)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.GetLastFailures(subjectID, userID))
}

// CancelTask handles DELETE /tasks/{taskID}. Only queued tasks can be canceled.
func (h *GenerationHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "taskID", log)
	if !ok {
		return
	}
	if err := h.service.CancelTask(r.Context(), userID, taskID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelSubjectTasks handles DELETE /subjects/{subjectID}/tasks.
func (h *GenerationHandler) CancelSubjectTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, subjectID, ok := handleUserIDAndPathUUID(w, r, "subjectID", log)
	if !ok {
		return
	}
	n := h.service.CancelOwnSubjectTasks(r.Context(), userID, subjectID)
	log.Debug("subject tasks canceled", slog.String("subject_id", subjectID.String()), slog.Int("canceled", n))
	shared.RespondWithJSON(w, r, http.StatusOK, CancelTasksResponse{Canceled: n})
}

// CancelAllTasks handles DELETE /tasks, canceling every queued task of the caller.
func (h *GenerationHandler) CancelAllTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, ErrUnauthorized, "User ID not found or invalid")
		return
	}
	n := h.service.CancelUserTasks(r.Context(), userID)
	shared.RespondWithJSON(w, r, http.StatusOK, CancelTasksResponse{Canceled: n})
}

// Warmup handles POST /subjects/{subjectID}/warmup.
func (h *GenerationHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, subjectID, ok := handleUserIDAndPathUUID(w, r, "subjectID", log)
	if !ok {
		return
	}
	handle, err := h.service.WarmReviewQueue(r.Context(), userID, subjectID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, WarmupResponse{TaskID: handle.ID()})
}
