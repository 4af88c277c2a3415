package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// subscription is a handler plus the event types it wants. No types means all.
type subscription struct {
	handler EventHandler
	types   []TaskEventType
}

func (s subscription) wants(t TaskEventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// InMemoryEventEmitter dispatches task events synchronously to the handlers
// registered in this process.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With("component", "task_event_emitter"),
	}
}

// RegisterHandler subscribes handler to the given event types, or to every
// event when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...TaskEventType) {
	if handler == nil {
		panic("event handler cannot be nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, subscription{handler: handler, types: types})
	e.logger.Debug("event handler registered",
		"handler_count", len(e.subs),
		"types", types)
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEventEmitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// EmitEvent delivers event to every subscribed handler. A failing handler
// does not stop delivery to the rest; all failures are joined in the result.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	subs := slices.Clone(e.subs)
	e.mu.RUnlock()

	var errs []error
	for i, sub := range subs {
		if !sub.wants(event.Type) {
			continue
		}
		if err := sub.handler.HandleEvent(ctx, event); err != nil {
			e.logger.Warn("event handler failed",
				"error", err,
				"handler_index", i,
				"event_type", event.Type,
				"task_id", event.TaskID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
