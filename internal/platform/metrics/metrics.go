// Package metrics defines the Prometheus instruments exported by the
// scheduler, the lock service and the review path. A nil *Metrics is valid
// and records nothing, so components can take one unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scry"

// Lock acquisition results.
const (
	LockAcquired  = "acquired"
	LockReentrant = "reentrant"
	LockContended = "contended"
	LockError     = "error"
)

// Task outcomes.
const (
	TaskCompleted = "completed"
	TaskSkipped   = "skipped"
	TaskFailed    = "failed"
	TaskTimedOut  = "timed_out"
	TaskRetried   = "retried"
	TaskCanceled  = "canceled"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	tasksEnqueued  *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	tasksRunning   prometheus.Gauge
	failureRecords prometheus.Gauge

	lockAcquire *prometheus.CounterVec
	locksSwept  prometheus.Counter

	reviews *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the collectors on reg. Tests pass their own registry.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		tasksEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Total number of generation tasks accepted by the scheduler",
		}, []string{"kind"}),

		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of task executions by kind and outcome",
		}, []string{"kind", "outcome"}),

		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of a single task execution",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting for an execution slot",
		}),

		tasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Number of tasks currently executing",
		}),

		failureRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failure_records",
			Help:      "Number of (user, subject) failure records held in memory",
		}),

		lockAcquire: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Lock acquisition attempts by result",
		}, []string{"result"}),

		locksSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_swept_total",
			Help:      "Expired lock rows removed",
		}),

		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Review submissions by item kind and whether the schedule changed",
		}, []string{"item_kind", "changed"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TaskEnqueued counts an accepted task.
func (m *Metrics) TaskEnqueued(kind string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

// TaskFinished records one execution attempt.
func (m *Metrics) TaskFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// TaskCanceled counts a task removed from the queue before it ran.
func (m *Metrics) TaskCanceled(kind string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(kind, TaskCanceled).Inc()
}

// SetQueue publishes the scheduler's queue depth and running count.
func (m *Metrics) SetQueue(queued, running int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(queued))
	m.tasksRunning.Set(float64(running))
}

// SetFailureRecords publishes the failure cache size.
func (m *Metrics) SetFailureRecords(n int) {
	if m == nil {
		return
	}
	m.failureRecords.Set(float64(n))
}

// LockAcquire counts an acquisition attempt with one of the Lock* results.
func (m *Metrics) LockAcquire(result string) {
	if m == nil {
		return
	}
	m.lockAcquire.WithLabelValues(result).Inc()
}

// LocksSwept adds n removed expired locks.
func (m *Metrics) LocksSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.locksSwept.Add(float64(n))
}

// Review counts a review submission.
func (m *Metrics) Review(itemKind string, changed bool) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.reviews.WithLabelValues(itemKind, label).Inc()
}
