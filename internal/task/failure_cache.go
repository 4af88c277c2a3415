package task

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/platform/metrics"
)

// Defaults for the failure cache.
const (
	DefaultFailureRetention  = time.Hour
	DefaultFailureMaxRecords = 100
)

// Failure is the last failure of one content kind.
type Failure struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// FailureRecord holds the last known failure per content kind for a user's subject.
type FailureRecord struct {
	UserID    uuid.UUID                      `json:"user_id"`
	SubjectID uuid.UUID                      `json:"subject_id"`
	Failures  map[domain.ContentKind]Failure `json:"failures"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

type failureKey struct {
	userID    uuid.UUID
	subjectID uuid.UUID
}

// FailureCache keeps failure summaries after the failed tasks are gone.
// It is safe for concurrent use.
type FailureCache struct {
	retention  time.Duration
	maxRecords int
	now        func() time.Time
	metrics    *metrics.Metrics

	mu      sync.Mutex
	records map[failureKey]*FailureRecord
}

// NewFailureCache creates a cache that keeps records for retention and at
// most maxRecords of them. Zero values select the defaults.
func NewFailureCache(retention time.Duration, maxRecords int, m *metrics.Metrics) *FailureCache {
	if retention <= 0 {
		retention = DefaultFailureRetention
	}
	if maxRecords <= 0 {
		maxRecords = DefaultFailureMaxRecords
	}
	return &FailureCache{
		retention:  retention,
		maxRecords: maxRecords,
		now:        time.Now,
		metrics:    m,
		records:    make(map[failureKey]*FailureRecord),
	}
}

// Record stores msg as the latest failure of kind, overwriting any earlier one.
func (c *FailureCache) Record(userID, subjectID uuid.UUID, kind domain.ContentKind, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	key := failureKey{userID: userID, subjectID: subjectID}
	rec, ok := c.records[key]
	if !ok {
		rec = &FailureRecord{
			UserID:    userID,
			SubjectID: subjectID,
			Failures:  make(map[domain.ContentKind]Failure),
		}
		c.records[key] = rec
	}
	rec.Failures[kind] = Failure{Message: msg, At: now}
	rec.UpdatedAt = now
	c.metrics.SetFailureRecords(len(c.records))
}

// Clear removes the failure of kind. The record goes away with its last failure.
func (c *FailureCache) Clear(userID, subjectID uuid.UUID, kind domain.ContentKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := failureKey{userID: userID, subjectID: subjectID}
	rec, ok := c.records[key]
	if !ok {
		return
	}
	delete(rec.Failures, kind)
	if len(rec.Failures) == 0 {
		delete(c.records, key)
	} else {
		rec.UpdatedAt = c.now().UTC()
	}
	c.metrics.SetFailureRecords(len(c.records))
}

// ClearAll removes every failure for the user's subject.
func (c *FailureCache) ClearAll(userID, subjectID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, failureKey{userID: userID, subjectID: subjectID})
	c.metrics.SetFailureRecords(len(c.records))
}

// Get returns a copy of the record for the user's subject.
func (c *FailureCache) Get(userID, subjectID uuid.UUID) (FailureRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[failureKey{userID: userID, subjectID: subjectID}]
	if !ok {
		return FailureRecord{}, false
	}
	out := *rec
	out.Failures = make(map[domain.ContentKind]Failure, len(rec.Failures))
	for k, v := range rec.Failures {
		out.Failures[k] = v
	}
	return out, true
}

// Len returns the number of records.
func (c *FailureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Sweep drops records older than the retention window, then evicts the
// oldest remaining records while the count exceeds the cap. It returns the
// number of records removed.
func (c *FailureCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().UTC().Add(-c.retention)
	for key, rec := range c.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(c.records, key)
			removed++
		}
	}

	if excess := len(c.records) - c.maxRecords; excess > 0 {
		keys := make([]failureKey, 0, len(c.records))
		for key := range c.records {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return c.records[keys[i]].UpdatedAt.Before(c.records[keys[j]].UpdatedAt)
		})
		for _, key := range keys[:excess] {
			delete(c.records, key)
		}
		removed += excess
	}

	c.metrics.SetFailureRecords(len(c.records))
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *FailureCache) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	logger = logger.With("component", "failure_sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logger.Debug("failure records evicted", "count", n, "remaining", c.Len())
			}
		}
	}
}
