// Package generation is the entry point callers use to request content
// generation and to ask what became of it. It deduplicates requests in this
// runtime, checks the shared lock table for work running elsewhere, and
// hands accepted requests to the task scheduler.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	contentgen "github.com/phrazzld/scry-engine/internal/generation"
	"github.com/phrazzld/scry-engine/internal/lock"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/task"
)

var (
	// ErrAlreadyGenerating is returned when another runtime holds the
	// generation lock. Callers should present it apart from a failure.
	ErrAlreadyGenerating = errors.New("content is already being generated")

	// ErrInvalidRequest is returned for a malformed generation request.
	ErrInvalidRequest = errors.New("invalid generation request")
)

// Scheduler is the part of task.Scheduler used by the service.
type Scheduler interface {
	Enqueue(ctx context.Context, t task.GenerationTask) (*task.Handle, error)
	EnqueueUnique(ctx context.Context, t task.GenerationTask) (*task.Handle, bool, error)
	GetTaskState(subjectID, userID uuid.UUID, kind domain.ContentKind) task.TaskState
	FindActive(subjectID, userID uuid.UUID, kind domain.ContentKind) *task.Handle
	Task(id uuid.UUID) (task.GenerationTask, bool)
	Cancel(ctx context.Context, id uuid.UUID) error
	CancelBySubject(ctx context.Context, subjectID uuid.UUID) int
	CancelBySubjectForUser(ctx context.Context, subjectID, userID uuid.UUID) int
	CancelByCollection(ctx context.Context, collectionID uuid.UUID) int
	CancelByUser(ctx context.Context, userID uuid.UUID) int
}

// LockChecker reports active generation locks across runtimes.
type LockChecker interface {
	HasActiveLock(ctx context.Context, subjectID, userID uuid.UUID) (*lock.ActiveLock, error)
	OwnerToken() string
}

// FailureReader looks up the last failures for a user's subject.
type FailureReader interface {
	Get(userID, subjectID uuid.UUID) (task.FailureRecord, bool)
}

var _ Scheduler = (*task.Scheduler)(nil)
var _ LockChecker = (*lock.Service)(nil)
var _ FailureReader = (*task.FailureCache)(nil)

// Request asks for content of one kind for a subject.
type Request struct {
	SubjectID     uuid.UUID
	UserID        uuid.UUID
	ContentKind   domain.ContentKind
	CollectionID  *uuid.UUID
	Quantity      int
	Extra         map[string]string
	AutoGenerated bool
}

// Failures holds the last failure per content kind. A nil field means no
// failure is on record for that kind.
type Failures struct {
	Flashcards *task.Failure `json:"flashcards,omitempty"`
	Quiz       *task.Failure `json:"quiz,omitempty"`
}

// Service exposes generation requests, task state and failure summaries.
type Service struct {
	scheduler Scheduler
	locks     LockChecker
	failures  FailureReader
	logger    *slog.Logger
}

// NewService creates the service. It panics on a nil dependency.
func NewService(scheduler Scheduler, locks LockChecker, failures FailureReader, log *slog.Logger) *Service {
	if scheduler == nil {
		panic("scheduler cannot be nil")
	}
	if locks == nil {
		panic("lock checker cannot be nil")
	}
	if failures == nil {
		panic("failure reader cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		scheduler: scheduler,
		locks:     locks,
		failures:  failures,
		logger:    log.With(slog.String("component", "generation_service")),
	}
}

// EnqueueGeneration queues generation of req.ContentKind for the subject.
// A request matching a task already queued or running in this runtime
// returns that task's handle. ErrAlreadyGenerating means another runtime is
// doing the same work.
func (s *Service) EnqueueGeneration(ctx context.Context, req Request) (*task.Handle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("subject_id", req.SubjectID.String()),
		slog.String("user_id", req.UserID.String()),
		slog.String("content_kind", string(req.ContentKind)),
	)

	if h := s.scheduler.FindActive(req.SubjectID, req.UserID, req.ContentKind); h != nil {
		log.Debug("generation already queued", slog.String("task_id", h.ID().String()))
		return h, nil
	}

	active, err := s.locks.HasActiveLock(ctx, req.SubjectID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check generation lock: %w", err)
	}
	if active != nil && active.OwnerToken != s.locks.OwnerToken() && covers(active.WorkKind, req.ContentKind) {
		log.Info("generation running elsewhere",
			slog.String("lock_id", active.LockID.String()),
			slog.String("work_kind", string(active.WorkKind)),
			slog.String("status", string(active.Status)))
		return nil, ErrAlreadyGenerating
	}

	subjectID := req.SubjectID
	h, existing, err := s.scheduler.EnqueueUnique(ctx, task.GenerationTask{
		Kind:         task.KindContentGeneration,
		UserID:       req.UserID,
		SubjectID:    &subjectID,
		CollectionID: req.CollectionID,
		Metadata: task.Metadata{
			ContentKind:   req.ContentKind,
			Options:       task.Options{Quantity: req.Quantity, Extra: req.Extra},
			AutoGenerated: req.AutoGenerated,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}
	if existing {
		log.Debug("generation already queued", slog.String("task_id", h.ID().String()))
	}
	return h, nil
}

// WarmReviewQueue queues a cache warmup task for the user's subject.
func (s *Service) WarmReviewQueue(ctx context.Context, userID, subjectID uuid.UUID) (*task.Handle, error) {
	h, err := s.scheduler.Enqueue(ctx, task.GenerationTask{
		Kind:      task.KindCacheWarmup,
		UserID:    userID,
		SubjectID: &subjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue cache warmup: %w", err)
	}
	return h, nil
}

// GetTaskState reports whether generation of kind for the subject is
// running, queued or absent in this runtime.
func (s *Service) GetTaskState(subjectID, userID uuid.UUID, kind domain.ContentKind) task.TaskState {
	return s.scheduler.GetTaskState(subjectID, userID, kind)
}

// GetLastFailures returns the last failure per content kind for the user's subject.
func (s *Service) GetLastFailures(subjectID, userID uuid.UUID) Failures {
	rec, ok := s.failures.Get(userID, subjectID)
	if !ok {
		return Failures{}
	}
	var out Failures
	if f, ok := rec.Failures[domain.ContentKindFlashcards]; ok {
		out.Flashcards = &f
	}
	if f, ok := rec.Failures[domain.ContentKindQuiz]; ok {
		out.Quiz = &f
	}
	return out
}

// CancelTask cancels a queued task owned by userID. Tasks of other users are
// reported as not found.
func (s *Service) CancelTask(ctx context.Context, userID, taskID uuid.UUID) error {
	t, ok := s.scheduler.Task(taskID)
	if !ok || t.UserID != userID {
		return task.ErrTaskNotFound
	}
	return s.scheduler.Cancel(ctx, taskID)
}

// CancelSubjectTasks cancels every queued task for the subject.
func (s *Service) CancelSubjectTasks(ctx context.Context, subjectID uuid.UUID) int {
	return s.scheduler.CancelBySubject(ctx, subjectID)
}

// CancelOwnSubjectTasks cancels the queued tasks userID has for the subject.
func (s *Service) CancelOwnSubjectTasks(ctx context.Context, userID, subjectID uuid.UUID) int {
	return s.scheduler.CancelBySubjectForUser(ctx, subjectID, userID)
}

// CancelCollectionTasks cancels every queued task scoped to the collection.
func (s *Service) CancelCollectionTasks(ctx context.Context, collectionID uuid.UUID) int {
	return s.scheduler.CancelByCollection(ctx, collectionID)
}

// CancelUserTasks cancels every queued task owned by the user.
func (s *Service) CancelUserTasks(ctx context.Context, userID uuid.UUID) int {
	return s.scheduler.CancelByUser(ctx, userID)
}

func validate(req Request) error {
	switch {
	case req.SubjectID == uuid.Nil:
		return fmt.Errorf("%w: subject ID cannot be empty", ErrInvalidRequest)
	case req.UserID == uuid.Nil:
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalidRequest)
	case !req.ContentKind.Valid():
		return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrInvalidContentKind)
	case req.Quantity < 0 || req.Quantity > contentgen.MaxQuantity:
		return fmt.Errorf("%w: quantity must be between 0 and %d", ErrInvalidRequest, contentgen.MaxQuantity)
	}
	return nil
}

// covers reports whether a lock of work kind wk blocks generating kind.
func covers(wk domain.WorkKind, kind domain.ContentKind) bool {
	return wk == domain.WorkKindBoth || wk == domain.WorkKindFor(kind)
}
