package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/events"
	"github.com/phrazzld/scry-engine/internal/platform/metrics"
	"github.com/phrazzld/scry-engine/internal/platform/telemetry"
	"github.com/phrazzld/scry-engine/internal/redact"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// MaxAutoRetries is how many times a failed auto-generated task is requeued.
const MaxAutoRetries = 1

// Config holds the scheduler limits.
type Config struct {
	// Concurrency is the maximum number of tasks executing at once.
	Concurrency int

	// Timeout is the deadline of a single execution.
	Timeout time.Duration

	// MaxQueued caps the number of waiting tasks. Zero means unlimited.
	MaxQueued int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Concurrency: 2,
		Timeout:     5 * time.Minute,
		MaxQueued:   1000,
	}
}

// State is what GetTaskState reports for a (subject, user, content kind).
type State string

// Task states visible to callers
const (
	StateRunning State = "running"
	StateQueued  State = "queued"
	StateNone    State = "none"
)

// TaskState describes where the generation for a subject stands. Position
// is the 1-based place in the queue and only set for StateQueued.
type TaskState struct {
	Status   State     `json:"status"`
	Position int       `json:"position,omitempty"`
	TaskID   uuid.UUID `json:"task_id,omitempty"`
	Progress int       `json:"progress"`
}

type entry struct {
	task   GenerationTask
	handle *Handle
}

// Scheduler runs GenerationTasks with bounded concurrency.
type Scheduler struct {
	cfg      Config
	handlers map[Kind]Handler
	failures *FailureCache
	emitter  events.EventEmitter
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	slots *semaphore.Weighted
	wake  chan struct{}

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	queue    []*entry
	running  map[uuid.UUID]*entry
	tasks    map[uuid.UUID]*entry
	draining bool
	stopped  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEmitter publishes task lifecycle events through e.
func WithEmitter(e events.EventEmitter) Option {
	return func(s *Scheduler) { s.emitter = e }
}

// WithMetrics records queue and outcome metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithHandler registers h for kind.
func WithHandler(kind Kind, h Handler) Option {
	return func(s *Scheduler) { s.handlers[kind] = h }
}

// NewScheduler creates a scheduler. failures may be nil when failure
// summaries are not needed.
func NewScheduler(cfg Config, failures *FailureCache, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Concurrency <= 0 {
		logger.Warn("invalid concurrency specified, using default",
			"specified", cfg.Concurrency,
			"default", defaults.Concurrency)
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if failures == nil {
		failures = NewFailureCache(0, 0, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:        cfg,
		handlers:   make(map[Kind]Handler),
		failures:   failures,
		tracer:     telemetry.Tracer("task"),
		logger:     logger.With(slog.String("component", "task_scheduler")),
		now:        time.Now,
		slots:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		wake:       make(chan struct{}, 1),
		baseCtx:    ctx,
		cancelBase: cancel,
		running:    make(map[uuid.UUID]*entry),
		tasks:      make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register sets the handler for kind, replacing any earlier one.
func (s *Scheduler) Register(kind Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Failures returns the scheduler's failure cache.
func (s *Scheduler) Failures() *FailureCache {
	return s.failures
}

// Enqueue appends the task to the queue and starts the drain loop if it is
// idle. The task's ID is generated when unset.
func (s *Scheduler) Enqueue(ctx context.Context, t GenerationTask) (*Handle, error) {
	h, _, err := s.enqueue(ctx, t, false)
	return h, err
}

// EnqueueUnique queues a content generation task unless one for the same
// subject, user and content kind is already queued or running, in which case
// that task's handle is returned with existing set. The check and the insert
// happen under one lock.
func (s *Scheduler) EnqueueUnique(ctx context.Context, t GenerationTask) (h *Handle, existing bool, err error) {
	if t.Kind != KindContentGeneration {
		return nil, false, fmt.Errorf("%w: unique enqueue needs a content generation task", ErrInvalidTask)
	}
	return s.enqueue(ctx, t, true)
}

func (s *Scheduler) enqueue(ctx context.Context, t GenerationTask, unique bool) (*Handle, bool, error) {
	if err := t.Validate(); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = StatusPending
	t.Progress = 0
	t.StartedAt, t.CompletedAt = nil, nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, false, ErrSchedulerStopped
	}
	if _, ok := s.handlers[t.Kind]; !ok {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s", ErrNoHandler, t.Kind)
	}
	if unique {
		if e := s.activeLocked(*t.SubjectID, t.UserID, t.Metadata.ContentKind); e != nil {
			s.mu.Unlock()
			return e.handle, true, nil
		}
	}
	if _, dup := s.tasks[t.ID]; dup {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: duplicate task ID %s", ErrInvalidTask, t.ID)
	}
	if s.cfg.MaxQueued > 0 && len(s.queue) >= s.cfg.MaxQueued {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %d tasks waiting", ErrQueueFull, len(s.queue))
	}

	e := &entry{task: t, handle: newHandle(t.ID)}
	s.queue = append(s.queue, e)
	s.tasks[t.ID] = e
	s.kickLocked()
	queued, running := len(s.queue), len(s.running)
	s.mu.Unlock()

	s.metrics.TaskEnqueued(string(t.Kind))
	s.metrics.SetQueue(queued, running)
	s.taskLogger(ctx, t).Info("task enqueued", "queue_len", queued)
	s.emit(ctx, events.TaskQueued, t, "")
	return e.handle, false, nil
}

// kickLocked starts the drain loop or wakes it.
func (s *Scheduler) kickLocked() {
	if !s.draining {
		s.draining = true
		s.wg.Add(1)
		go s.drain()
		return
	}
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain admits queued tasks while execution slots are free and sleeps until
// a task finishes or arrives. It exits once nothing is queued or running.
func (s *Scheduler) drain() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) > 0 && !s.stopped && s.slots.TryAcquire(1) {
			e := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]

			started := s.now().UTC()
			e.task.Status = StatusRunning
			e.task.StartedAt = &started
			s.running[e.task.ID] = e

			s.wg.Add(1)
			go s.run(e, e.task)
		}
		queued, running := len(s.queue), len(s.running)
		if running == 0 && (queued == 0 || s.stopped) {
			s.draining = false
			s.mu.Unlock()
			s.metrics.SetQueue(queued, running)
			return
		}
		s.mu.Unlock()
		s.metrics.SetQueue(queued, running)

		<-s.wake
	}
}

// run executes one admitted task and applies the outcome policy.
func (s *Scheduler) run(e *entry, snapshot GenerationTask) {
	defer s.wg.Done()

	ctx := s.baseCtx
	s.emit(ctx, events.TaskRunning, snapshot, "")
	start := time.Now()
	res, err := s.executeOne(ctx, e, snapshot)
	s.finish(ctx, e, res, err, time.Since(start))
}

// executeOne races the handler against the task deadline. A handler that
// outlives its deadline keeps running in the background, but its slot is
// released and its result discarded.
func (s *Scheduler) executeOne(parent context.Context, e *entry, t GenerationTask) (Result, error) {
	s.mu.Lock()
	handler := s.handlers[t.Kind]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.id", t.ID.String()),
		attribute.String("task.kind", string(t.Kind)),
		attribute.String("task.content_kind", string(t.Metadata.ContentKind)),
		attribute.Int("task.retry_count", t.Metadata.RetryCount),
	))
	defer span.End()

	log := s.taskLogger(ctx, t)
	log.Info("task started")

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	progress := s.progressFunc(ctx, e, t.Metadata.RetryCount)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task handler panicked: %v", r)}
			}
		}()
		res, err := handler.Handle(ctx, t, progress)
		done <- outcome{res: res, err: err}
	}()

	var res Result
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", ErrTaskTimeout, s.cfg.Timeout, err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTaskTimeout, s.cfg.Timeout)
		} else {
			err = ctx.Err()
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("task.skipped", res.Skipped))
	}
	return res, err
}

// progressFunc returns the callback handed to the handler. Reports from an
// earlier attempt, or after the task left the running state, are dropped.
func (s *Scheduler) progressFunc(ctx context.Context, e *entry, attempt int) ProgressFunc {
	return func(percent int) {
		percent = min(max(percent, 0), 100)

		s.mu.Lock()
		if e.task.Status != StatusRunning || e.task.Metadata.RetryCount != attempt || percent <= e.task.Progress {
			s.mu.Unlock()
			return
		}
		e.task.Progress = percent
		snapshot := e.task
		s.mu.Unlock()

		s.emit(ctx, events.TaskProgress, snapshot, "")
	}
}

// finish records the outcome of one execution and frees its slot.
func (s *Scheduler) finish(ctx context.Context, e *entry, res Result, err error, elapsed time.Duration) {
	now := s.now().UTC()
	kind := string(e.task.Kind)

	s.mu.Lock()
	delete(s.running, e.task.ID)
	t := &e.task

	var (
		eventType events.TaskEventType
		outcome   string
		errMsg    string
	)
	switch {
	case err == nil:
		t.Status = StatusCompleted
		t.Progress = 100
		t.CompletedAt = &now
		t.LastError = ""
		s.clearFailure(t)
		eventType, outcome = events.TaskCompleted, metrics.TaskCompleted
		if res.Skipped {
			eventType, outcome = events.TaskSkipped, metrics.TaskSkipped
		}

	case errors.Is(err, ErrTaskTimeout):
		s.fail(t, err, now)
		eventType, outcome, errMsg = events.TaskFailed, metrics.TaskTimedOut, err.Error()

	case t.Metadata.AutoGenerated && t.Metadata.RetryCount < MaxAutoRetries && !s.stopped:
		t.Metadata.RetryCount++
		t.Status = StatusPending
		t.Progress = 0
		t.StartedAt = nil
		t.LastError = redact.Error(err)
		s.queue = append(s.queue, e)
		eventType, outcome, errMsg = events.TaskRetried, metrics.TaskRetried, err.Error()

	default:
		s.fail(t, err, now)
		eventType, outcome, errMsg = events.TaskFailed, metrics.TaskFailed, err.Error()
	}

	snapshot := *t
	if t.Status == StatusCompleted || t.Status == StatusFailed {
		delete(s.tasks, t.ID)
		if err != nil {
			e.handle.resolve(Result{}, err)
		} else {
			e.handle.resolve(res, nil)
		}
	}
	s.mu.Unlock()

	s.slots.Release(1)
	s.signal()

	s.metrics.TaskFinished(kind, outcome, elapsed)
	log := s.taskLogger(ctx, snapshot).With("elapsed", elapsed, "outcome", outcome)
	switch outcome {
	case metrics.TaskCompleted, metrics.TaskSkipped:
		log.Info("task finished", "reason", res.Reason)
	case metrics.TaskRetried:
		log.Warn("task failed, retrying", "error", err, "retry_count", snapshot.Metadata.RetryCount)
	default:
		log.Error("task failed", "error", err)
	}
	s.emit(ctx, eventType, snapshot, errMsg)
}

func (s *Scheduler) fail(t *GenerationTask, err error, now time.Time) {
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.LastError = redact.Error(err)
	if t.SubjectID != nil && t.Metadata.ContentKind.Valid() {
		s.failures.Record(t.UserID, *t.SubjectID, t.Metadata.ContentKind, t.LastError)
	}
}

func (s *Scheduler) clearFailure(t *GenerationTask) {
	if t.SubjectID != nil && t.Metadata.ContentKind.Valid() {
		s.failures.Clear(t.UserID, *t.SubjectID, t.Metadata.ContentKind)
	}
}

// Cancel removes a queued task. It returns ErrTaskRunning for a task that
// holds an execution slot and ErrTaskNotFound for an unknown or finished one.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if _, running := s.running[id]; running {
		s.mu.Unlock()
		return ErrTaskRunning
	}
	s.removeQueuedLocked(func(q *entry) bool { return q == e })
	snapshot := e.task
	s.mu.Unlock()

	s.canceled(ctx, snapshot)
	return nil
}

// CancelBySubject cancels every queued task for the subject.
func (s *Scheduler) CancelBySubject(ctx context.Context, subjectID uuid.UUID) int {
	return s.cancelWhere(ctx, func(t *GenerationTask) bool {
		return t.SubjectID != nil && *t.SubjectID == subjectID
	})
}

// CancelBySubjectForUser cancels the user's queued tasks for the subject.
func (s *Scheduler) CancelBySubjectForUser(ctx context.Context, subjectID, userID uuid.UUID) int {
	return s.cancelWhere(ctx, func(t *GenerationTask) bool {
		return t.UserID == userID && t.SubjectID != nil && *t.SubjectID == subjectID
	})
}

// CancelByCollection cancels every queued task scoped to the collection.
func (s *Scheduler) CancelByCollection(ctx context.Context, collectionID uuid.UUID) int {
	return s.cancelWhere(ctx, func(t *GenerationTask) bool {
		return t.CollectionID != nil && *t.CollectionID == collectionID
	})
}

// CancelByUser cancels every queued task owned by the user.
func (s *Scheduler) CancelByUser(ctx context.Context, userID uuid.UUID) int {
	return s.cancelWhere(ctx, func(t *GenerationTask) bool {
		return t.UserID == userID
	})
}

func (s *Scheduler) cancelWhere(ctx context.Context, match func(*GenerationTask) bool) int {
	s.mu.Lock()
	removed := s.removeQueuedLocked(func(e *entry) bool { return match(&e.task) })
	s.mu.Unlock()

	for _, t := range removed {
		s.canceled(ctx, t)
	}
	return len(removed)
}

// removeQueuedLocked drops matching queued entries, resolving their handles
// with ErrTaskCanceled, and returns snapshots of them.
func (s *Scheduler) removeQueuedLocked(match func(*entry) bool) []GenerationTask {
	var removed []GenerationTask
	kept := s.queue[:0]
	for _, e := range s.queue {
		if !match(e) {
			kept = append(kept, e)
			continue
		}
		delete(s.tasks, e.task.ID)
		e.handle.resolve(Result{}, ErrTaskCanceled)
		removed = append(removed, e.task)
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	return removed
}

func (s *Scheduler) canceled(ctx context.Context, t GenerationTask) {
	s.metrics.TaskCanceled(string(t.Kind))
	s.taskLogger(ctx, t).Info("task canceled")
	s.emit(ctx, events.TaskCanceled, t, "")
}

// GetTaskState reports whether generation of kind for the subject is
// running, queued (with its queue position) or absent.
func (s *Scheduler) GetTaskState(subjectID, userID uuid.UUID, kind domain.ContentKind) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.running {
		if e.task.matches(subjectID, userID, kind) {
			return TaskState{Status: StateRunning, TaskID: e.task.ID, Progress: e.task.Progress}
		}
	}
	for i, e := range s.queue {
		if e.task.matches(subjectID, userID, kind) {
			return TaskState{Status: StateQueued, Position: i + 1, TaskID: e.task.ID}
		}
	}
	return TaskState{Status: StateNone}
}

// FindActive returns the handle of a queued or running generation of kind
// for the subject, or nil.
func (s *Scheduler) FindActive(subjectID, userID uuid.UUID, kind domain.ContentKind) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.activeLocked(subjectID, userID, kind); e != nil {
		return e.handle
	}
	return nil
}

func (s *Scheduler) activeLocked(subjectID, userID uuid.UUID, kind domain.ContentKind) *entry {
	for _, e := range s.tasks {
		if e.task.matches(subjectID, userID, kind) {
			return e
		}
	}
	return nil
}

// Task returns a snapshot of a queued or running task.
func (s *Scheduler) Task(id uuid.UUID) (GenerationTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return GenerationTask{}, false
	}
	return e.task, true
}

// Stats returns the number of queued and running tasks.
func (s *Scheduler) Stats() (queued, running int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), len(s.running)
}

// Stop rejects new tasks, resolves queued ones with ErrSchedulerStopped and
// waits for running tasks until ctx is done. Handlers still running at that
// point have their contexts canceled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, e := range s.queue {
		delete(s.tasks, e.task.ID)
		e.handle.resolve(Result{}, ErrSchedulerStopped)
	}
	dropped := len(s.queue)
	s.queue = nil
	s.signal()
	s.mu.Unlock()

	s.logger.Info("stopping task scheduler", "dropped_queued", dropped)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) taskLogger(ctx context.Context, t GenerationTask) *slog.Logger {
	attrs := []any{
		"task_id", t.ID,
		"task_kind", t.Kind,
		"user_id", t.UserID,
	}
	if t.SubjectID != nil {
		attrs = append(attrs, "subject_id", *t.SubjectID)
	}
	if t.Metadata.ContentKind != "" {
		attrs = append(attrs, "content_kind", t.Metadata.ContentKind)
	}
	return s.logger.With(attrs...)
}

func (s *Scheduler) emit(ctx context.Context, typ events.TaskEventType, t GenerationTask, errMsg string) {
	if s.emitter == nil {
		return
	}
	ev := events.NewTaskEvent(typ, t.ID, string(t.Kind), t.UserID)
	ev.SubjectID = t.SubjectID
	ev.CollectionID = t.CollectionID
	ev.ContentKind = string(t.Metadata.ContentKind)
	ev.Progress = t.Progress
	ev.Error = errMsg
	// Handler errors are logged by the emitter and never affect the task.
	_ = s.emitter.EmitEvent(context.WithoutCancel(ctx), ev)
}
