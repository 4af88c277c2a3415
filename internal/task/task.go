package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
)

// Kind identifies the work a task performs.
type Kind string

// Task kinds
const (
	KindContentGeneration   Kind = "content_generation"
	KindIndexInitialization Kind = "index_initialization"
	KindCacheWarmup         Kind = "cache_warmup"
)

// Valid reports whether k is a known task kind.
func (k Kind) Valid() bool {
	switch k {
	case KindContentGeneration, KindIndexInitialization, KindCacheWarmup:
		return true
	}
	return false
}

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Options is the free-form options bag passed through to the handler.
type Options struct {
	// Quantity is the number of items to generate; zero means the handler default.
	Quantity int               `json:"quantity,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Metadata holds the task attributes that drive handler and retry behavior.
type Metadata struct {
	ContentKind   domain.ContentKind `json:"content_kind,omitempty"`
	Options       Options            `json:"options"`
	RetryCount    int                `json:"retry_count"`
	AutoGenerated bool               `json:"auto_generated"`
}

// GenerationTask is one unit of scheduled work. Values handed out by the
// Scheduler are snapshots; mutating them has no effect on the queued task.
type GenerationTask struct {
	ID           uuid.UUID  `json:"id"`
	Kind         Kind       `json:"kind"`
	UserID       uuid.UUID  `json:"user_id"`
	SubjectID    *uuid.UUID `json:"subject_id,omitempty"`
	CollectionID *uuid.UUID `json:"collection_id,omitempty"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Metadata     Metadata   `json:"metadata"`
}

// Validate checks the fields the scheduler relies on.
func (t *GenerationTask) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, t.Kind)
	}
	if t.UserID == uuid.Nil {
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalidTask)
	}
	if t.Kind == KindContentGeneration {
		if t.SubjectID == nil || *t.SubjectID == uuid.Nil {
			return fmt.Errorf("%w: content generation needs a subject", ErrInvalidTask)
		}
		if !t.Metadata.ContentKind.Valid() {
			return fmt.Errorf("%w: %w", ErrInvalidTask, domain.ErrInvalidContentKind)
		}
	}
	if t.Metadata.Options.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity", ErrInvalidTask)
	}
	return nil
}

// matches reports whether the task generates kind for the subject and user.
func (t *GenerationTask) matches(subjectID, userID uuid.UUID, kind domain.ContentKind) bool {
	return t.Kind == KindContentGeneration &&
		t.UserID == userID &&
		t.SubjectID != nil && *t.SubjectID == subjectID &&
		t.Metadata.ContentKind == kind
}

// Result is what a handler produces for a finished task.
type Result struct {
	// Skipped is set when a precondition no longer held and no work was done.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// Recovered is set when another runtime persisted the same content
	// first and the existing rows were returned instead.
	Recovered bool `json:"recovered,omitempty"`

	Flashcards    []*domain.Flashcard    `json:"flashcards,omitempty"`
	QuizQuestions []*domain.QuizQuestion `json:"quiz_questions,omitempty"`

	// DueCount is set by cache warmup.
	DueCount int `json:"due_count,omitempty"`
}

// Skip returns a skipped result with the given reason.
func Skip(reason string) Result {
	return Result{Skipped: true, Reason: reason}
}

// ProgressFunc reports task progress in percent. Values that would move
// progress backwards are ignored.
type ProgressFunc func(percent int)

// Handler executes tasks of one kind. Handle must return promptly once ctx
// is done; the scheduler enforces its deadline regardless.
type Handler interface {
	Handle(ctx context.Context, t GenerationTask, progress ProgressFunc) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t GenerationTask, progress ProgressFunc) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, t GenerationTask, progress ProgressFunc) (Result, error) {
	return f(ctx, t, progress)
}
