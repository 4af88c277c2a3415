package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskEventType names a task status transition.
type TaskEventType string

// Task event types
const (
	TaskQueued    TaskEventType = "task.queued"
	TaskRunning   TaskEventType = "task.running"
	TaskProgress  TaskEventType = "task.progress"
	TaskCompleted TaskEventType = "task.completed"
	TaskSkipped   TaskEventType = "task.skipped"
	TaskFailed    TaskEventType = "task.failed"
	TaskRetried   TaskEventType = "task.retried"
	TaskCanceled  TaskEventType = "task.canceled"
)

// TaskEvent describes one transition of a background task. It deliberately
// holds plain fields so the events package does not depend on the scheduler.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type     TaskEventType `json:"type"`
	TaskID   uuid.UUID     `json:"task_id"`
	TaskKind string        `json:"task_kind"`
	UserID   uuid.UUID     `json:"user_id"`

	SubjectID    *uuid.UUID `json:"subject_id,omitempty"`
	CollectionID *uuid.UUID `json:"collection_id,omitempty"`
	ContentKind  string     `json:"content_kind,omitempty"`

	// Progress is the task progress in percent at the time of the event
	Progress int `json:"progress"`

	// Error is set on failed events
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates an event of the given type for a task.
func NewTaskEvent(eventType TaskEventType, taskID uuid.UUID, taskKind string, userID uuid.UUID) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		TaskKind:  taskKind,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

// Marshal encodes the event as JSON for transport.
func (e *TaskEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalTaskEvent decodes an event produced by Marshal.
func UnmarshalTaskEvent(data []byte) (*TaskEvent, error) {
	var e TaskEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the scheduler to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
