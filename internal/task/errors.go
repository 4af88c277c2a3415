package task

import "errors"

// Errors returned by the scheduler
var (
	// ErrTaskTimeout marks a task that exceeded its deadline. It is never retried.
	ErrTaskTimeout = errors.New("task exceeded its deadline")

	// ErrTaskRunning is returned when canceling a task that already holds an execution slot.
	ErrTaskRunning = errors.New("task is running and cannot be canceled")

	// ErrTaskNotFound is returned for an unknown or already finished task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskCanceled is delivered to waiters of a task removed from the queue.
	ErrTaskCanceled = errors.New("task canceled")

	// ErrNoHandler is returned when no handler is registered for the task kind.
	ErrNoHandler = errors.New("no handler registered for task kind")

	// ErrSchedulerStopped is returned once Stop has been called.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrQueueFull is returned when the queue holds the maximum number of tasks.
	ErrQueueFull = errors.New("task queue is full")

	// ErrInvalidTask is returned for a task missing required fields.
	ErrInvalidTask = errors.New("invalid task")
)
