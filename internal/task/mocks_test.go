package task

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/events"
	"github.com/phrazzld/scry-engine/internal/store"
)

type mockSubjectStore struct {
	GetByIDFn  func(ctx context.Context, id uuid.UUID) (*domain.Subject, error)
	IsLinkedFn func(ctx context.Context, collectionID, subjectID uuid.UUID) (bool, error)
}

var _ store.SubjectStore = (*mockSubjectStore)(nil)

func (m *mockSubjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	return m.GetByIDFn(ctx, id)
}

func (m *mockSubjectStore) IsLinked(ctx context.Context, collectionID, subjectID uuid.UUID) (bool, error) {
	if m.IsLinkedFn != nil {
		return m.IsLinkedFn(ctx, collectionID, subjectID)
	}
	return true, nil
}

type mockContentStore struct {
	CountFn               func(ctx context.Context, subjectID, userID uuid.UUID, kind domain.ContentKind) (int, error)
	InsertFlashcardsFn    func(ctx context.Context, cards []*domain.Flashcard) error
	InsertQuizQuestionsFn func(ctx context.Context, questions []*domain.QuizQuestion) error
	ListFlashcardsFn      func(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.Flashcard, error)
	ListQuizQuestionsFn   func(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.QuizQuestion, error)
}

var _ store.ContentStore = (*mockContentStore)(nil)

func (m *mockContentStore) Count(ctx context.Context, subjectID, userID uuid.UUID, kind domain.ContentKind) (int, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, subjectID, userID, kind)
	}
	return 0, nil
}

func (m *mockContentStore) InsertFlashcards(ctx context.Context, cards []*domain.Flashcard) error {
	if m.InsertFlashcardsFn != nil {
		return m.InsertFlashcardsFn(ctx, cards)
	}
	return nil
}

func (m *mockContentStore) InsertQuizQuestions(ctx context.Context, questions []*domain.QuizQuestion) error {
	if m.InsertQuizQuestionsFn != nil {
		return m.InsertQuizQuestionsFn(ctx, questions)
	}
	return nil
}

func (m *mockContentStore) ListFlashcards(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.Flashcard, error) {
	if m.ListFlashcardsFn != nil {
		return m.ListFlashcardsFn(ctx, subjectID, userID)
	}
	return nil, nil
}

func (m *mockContentStore) ListQuizQuestions(ctx context.Context, subjectID, userID uuid.UUID) ([]*domain.QuizQuestion, error) {
	if m.ListQuizQuestionsFn != nil {
		return m.ListQuizQuestionsFn(ctx, subjectID, userID)
	}
	return nil, nil
}

func (m *mockContentStore) WithTx(*sql.Tx) store.ContentStore { return m }

type mockReviewStore struct {
	CountDueFn func(ctx context.Context, userID, subjectID uuid.UUID, day time.Time) (int, error)
}

var _ store.ReviewStore = (*mockReviewStore)(nil)

func (m *mockReviewStore) GetForUpdate(context.Context, domain.ItemKind, uuid.UUID) (*domain.ReviewableItem, error) {
	return nil, store.ErrItemNotFound
}

func (m *mockReviewStore) SaveState(context.Context, domain.ItemKind, uuid.UUID, domain.ReviewState) error {
	return nil
}

func (m *mockReviewStore) ApplySchedule(context.Context, uuid.UUID, store.ScheduleUpdate) error {
	return nil
}

func (m *mockReviewStore) CountDue(ctx context.Context, userID, subjectID uuid.UUID, day time.Time) (int, error) {
	return m.CountDueFn(ctx, userID, subjectID, day)
}

func (m *mockReviewStore) WithTx(*sql.Tx) store.ReviewStore { return m }

// mockLocker records lock calls. Acquire grants a fresh lock unless AcquireFn is set.
type mockLocker struct {
	AcquireFn func(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind) (*domain.GenerationLock, error)

	mu       sync.Mutex
	acquired []domain.WorkKind
	statuses []domain.LockStatus
	released []releaseCall
}

type releaseCall struct {
	lockID  uuid.UUID
	success bool
	message string
}

var _ Locker = (*mockLocker)(nil)

func (m *mockLocker) Acquire(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
	_ time.Duration,
) (*domain.GenerationLock, error) {
	m.mu.Lock()
	m.acquired = append(m.acquired, kind)
	m.mu.Unlock()
	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, subjectID, userID, kind)
	}
	return &domain.GenerationLock{ID: uuid.New(), SubjectID: subjectID, UserID: userID, WorkKind: kind}, nil
}

func (m *mockLocker) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.LockStatus, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockLocker) Release(_ context.Context, lockID uuid.UUID, success bool, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, releaseCall{lockID: lockID, success: success, message: message})
	return nil
}

// recordingEmitter keeps every event it receives.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskEvent
}

func (r *recordingEmitter) EmitEvent(_ context.Context, e *events.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) ofType(typ events.TaskEventType) []*events.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.TaskEvent
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
