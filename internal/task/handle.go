package task

import (
	"context"

	"github.com/google/uuid"
)

// Handle lets a caller wait for a task. A retried task keeps its handle.
type Handle struct {
	id     uuid.UUID
	done   chan struct{}
	result Result
	err    error
}

func newHandle(id uuid.UUID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the task ID.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Done is closed when the task reaches a final state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done. A canceled task
// reports ErrTaskCanceled and a timed out one ErrTaskTimeout.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// resolve must be called exactly once, with the scheduler mutex held.
func (h *Handle) resolve(res Result, err error) {
	h.result = res
	h.err = err
	close(h.done)
}
