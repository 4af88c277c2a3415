package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/api/shared"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/service/generation"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/phrazzld/scry-engine/internal/task"
	"github.com/stretchr/testify/require"
)

type mockGenerationService struct {
	EnqueueGenerationFn     func(ctx context.Context, req generation.Request) (*task.Handle, error)
	GetTaskStateFn          func(subjectID, userID uuid.UUID, kind domain.ContentKind) task.TaskState
	GetLastFailuresFn       func(subjectID, userID uuid.UUID) generation.Failures
	CancelTaskFn            func(ctx context.Context, userID, taskID uuid.UUID) error
	CancelOwnSubjectTasksFn func(ctx context.Context, userID, subjectID uuid.UUID) int
	CancelUserTasksFn       func(ctx context.Context, userID uuid.UUID) int
	WarmReviewQueueFn       func(ctx context.Context, userID, subjectID uuid.UUID) (*task.Handle, error)
}

func (m *mockGenerationService) EnqueueGeneration(ctx context.Context, req generation.Request) (*task.Handle, error) {
	return m.EnqueueGenerationFn(ctx, req)
}

func (m *mockGenerationService) GetTaskState(subjectID, userID uuid.UUID, kind domain.ContentKind) task.TaskState {
	if m.GetTaskStateFn == nil {
		return task.TaskState{Status: task.StateNone}
	}
	return m.GetTaskStateFn(subjectID, userID, kind)
}

func (m *mockGenerationService) GetLastFailures(subjectID, userID uuid.UUID) generation.Failures {
	return m.GetLastFailuresFn(subjectID, userID)
}

func (m *mockGenerationService) CancelTask(ctx context.Context, userID, taskID uuid.UUID) error {
	return m.CancelTaskFn(ctx, userID, taskID)
}

func (m *mockGenerationService) CancelOwnSubjectTasks(ctx context.Context, userID, subjectID uuid.UUID) int {
	return m.CancelOwnSubjectTasksFn(ctx, userID, subjectID)
}

func (m *mockGenerationService) CancelUserTasks(ctx context.Context, userID uuid.UUID) int {
	return m.CancelUserTasksFn(ctx, userID)
}

func (m *mockGenerationService) WarmReviewQueue(ctx context.Context, userID, subjectID uuid.UUID) (*task.Handle, error) {
	return m.WarmReviewQueueFn(ctx, userID, subjectID)
}

type mockReviewService struct {
	ReviewItemFn       func(ctx context.Context, userID uuid.UUID, kind domain.ItemKind, itemID uuid.UUID, q srs.Quality) (*review.Outcome, error)
	ReviewQuizAnswerFn func(ctx context.Context, userID, questionID uuid.UUID, correct bool) (*review.Outcome, error)
	ApplyBatchFn       func(ctx context.Context, userID uuid.UUID, updates []store.ScheduleUpdate) error
}

func (m *mockReviewService) ReviewItem(ctx context.Context, userID uuid.UUID, kind domain.ItemKind, itemID uuid.UUID, q srs.Quality) (*review.Outcome, error) {
	return m.ReviewItemFn(ctx, userID, kind, itemID, q)
}

func (m *mockReviewService) ReviewQuizAnswer(ctx context.Context, userID, questionID uuid.UUID, correct bool) (*review.Outcome, error) {
	return m.ReviewQuizAnswerFn(ctx, userID, questionID, correct)
}

func (m *mockReviewService) ApplyBatch(ctx context.Context, userID uuid.UUID, updates []store.ScheduleUpdate) error {
	return m.ApplyBatchFn(ctx, userID, updates)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter mounts the handlers on the production paths. A nil user
// leaves the request unauthenticated.
func newTestRouter(userID uuid.UUID, gen GenerationService, rev ReviewService) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != uuid.Nil {
				req = req.WithContext(shared.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	if gen != nil {
		h := NewGenerationHandler(gen, testLogger())
		r.Post("/api/subjects/{subjectID}/generations", h.Enqueue)
		r.Get("/api/subjects/{subjectID}/generations/{contentKind}", h.State)
		r.Get("/api/subjects/{subjectID}/failures", h.Failures)
		r.Delete("/api/subjects/{subjectID}/tasks", h.CancelSubjectTasks)
		r.Delete("/api/tasks/{taskID}", h.CancelTask)
		r.Delete("/api/tasks", h.CancelAllTasks)
		r.Post("/api/subjects/{subjectID}/warmup", h.Warmup)
	}
	if rev != nil {
		h := NewReviewHandler(rev, testLogger())
		r.Post("/api/items/{itemKind}/{itemID}/review", h.ReviewItem)
		r.Post("/api/reviews/batch", h.ApplyBatch)
	}
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// newHandle runs a no-op task through a real scheduler to obtain a handle.
func newHandle(t *testing.T) *task.Handle {
	t.Helper()
	s := task.NewScheduler(task.Config{Concurrency: 1, Timeout: time.Second}, nil, testLogger(),
		task.WithHandler(task.KindCacheWarmup, task.HandlerFunc(
			func(context.Context, task.GenerationTask, task.ProgressFunc) (task.Result, error) {
				return task.Result{}, nil
			})))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	h, err := s.Enqueue(context.Background(), task.GenerationTask{Kind: task.KindCacheWarmup, UserID: uuid.New()})
	require.NoError(t, err)
	return h
}
