// Package lock implements the cross-runtime advisory lock that keeps the
// same generation job from running twice when several server instances or
// devices act on the same subject.
//
// Mutual exclusion rests entirely on the store's uniqueness constraint over
// (subject, user, work kind) for queued and running rows. Contention is a
// normal outcome: Acquire returns a nil lock and a nil error when another
// runtime holds the key.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/platform/metrics"
	"github.com/phrazzld/scry-engine/internal/store"
)

// DefaultTTL is used when neither the service nor the call sets a TTL.
const DefaultTTL = 10 * time.Minute

// ActiveLock describes whichever active lock covers a subject for a user.
type ActiveLock struct {
	LockID     uuid.UUID         `json:"lock_id"`
	WorkKind   domain.WorkKind   `json:"work_kind"`
	Status     domain.LockStatus `json:"status"`
	OwnerToken string            `json:"owner_token"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Service acquires and advances generation locks on behalf of one runtime.
type Service struct {
	store   store.LockStore
	owner   string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithOwnerToken overrides the random per-process owner token.
func WithOwnerToken(token string) Option {
	return func(s *Service) { s.owner = token }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records acquisition results and sweeps.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a lock service. Each Service gets its own owner token,
// so two services in one process do not share reentrancy.
func NewService(lockStore store.LockStore, ttl time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if lockStore == nil {
		panic("lock store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Service{
		store: lockStore,
		owner: uuid.NewString(),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.With(slog.String("component", "lock_service"), slog.String("owner", s.owner))
	return s
}

// OwnerToken returns the identifier this runtime writes into the locks it holds.
func (s *Service) OwnerToken() string {
	return s.owner
}

// Acquire takes the lock for the key, or returns the caller's own active lock
// for it. A nil lock with a nil error means another runtime holds the key.
// A ttl of zero uses the service default. Store failures are returned and
// mean the lock was not acquired.
func (s *Service) Acquire(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
	ttl time.Duration,
) (*domain.GenerationLock, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidWorkKind, kind)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	log := s.logger.With("subject_id", subjectID, "user_id", userID, "work_kind", kind)

	now := s.now().UTC()
	s.sweep(ctx, now)

	existing, err := s.store.FindActive(ctx, subjectID, userID, kind)
	switch {
	case err == nil && existing.OwnerToken == s.owner:
		s.metrics.LockAcquire(metrics.LockReentrant)
		log.Debug("reentrant lock acquisition", "lock_id", existing.ID)
		return existing, nil
	case err == nil:
		// A row that outlived its expiry here means the sweep failed; it
		// is reclaimed by the next successful sweep, never by deleting it
		// from under a possible concurrent reclaimer.
		s.metrics.LockAcquire(metrics.LockContended)
		log.Debug("lock held by another runtime", "holder", existing.OwnerToken, "status", existing.Status)
		return nil, nil
	case !errors.Is(err, store.ErrNotFound):
		s.metrics.LockAcquire(metrics.LockError)
		return nil, fmt.Errorf("failed to look up lock: %w", err)
	}

	lock := &domain.GenerationLock{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		UserID:     userID,
		WorkKind:   kind,
		Status:     domain.LockStatusQueued,
		OwnerToken: s.owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.store.Insert(ctx, lock); err != nil {
		if store.IsDuplicateError(err) {
			s.metrics.LockAcquire(metrics.LockContended)
			log.Debug("lost lock acquisition race")
			return nil, nil
		}
		s.metrics.LockAcquire(metrics.LockError)
		return nil, fmt.Errorf("failed to insert lock: %w", err)
	}

	s.metrics.LockAcquire(metrics.LockAcquired)
	log.Debug("lock acquired", "lock_id", lock.ID, "expires_at", lock.ExpiresAt)
	return lock, nil
}

// UpdateStatus advances a lock held by this runtime. Moving to running
// stamps started-at; moving to completed or failed stamps completed-at and
// records errorMessage when given. Returns store.ErrLockNotFound when the
// lock does not exist or belongs to another runtime.
func (s *Service) UpdateStatus(
	ctx context.Context,
	lockID uuid.UUID,
	status domain.LockStatus,
	errorMessage *string,
) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidLockStatus, status)
	}

	now := s.now().UTC()
	var started, completed *time.Time
	switch {
	case status == domain.LockStatusRunning:
		started = &now
	case status.Terminal():
		completed = &now
	}
	if !status.Terminal() {
		errorMessage = nil
	}

	if err := s.store.UpdateStatus(ctx, lockID, s.owner, status, started, completed, errorMessage); err != nil {
		return fmt.Errorf("failed to update lock %s to %s: %w", lockID, status, err)
	}
	return nil
}

// Release finishes a lock as completed or, when success is false, as failed
// with the given message.
func (s *Service) Release(ctx context.Context, lockID uuid.UUID, success bool, errorMessage string) error {
	if success {
		return s.UpdateStatus(ctx, lockID, domain.LockStatusCompleted, nil)
	}
	var msg *string
	if errorMessage != "" {
		msg = &errorMessage
	}
	return s.UpdateStatus(ctx, lockID, domain.LockStatusFailed, msg)
}

// HasActiveLock reports the active lock covering the subject for the user,
// whichever work kind holds it. It returns nil, nil when there is none.
func (s *Service) HasActiveLock(ctx context.Context, subjectID, userID uuid.UUID) (*ActiveLock, error) {
	lock, err := s.store.FindAnyActive(ctx, subjectID, userID, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check active lock: %w", err)
	}
	return &ActiveLock{
		LockID:     lock.ID,
		WorkKind:   lock.WorkKind,
		Status:     lock.Status,
		OwnerToken: lock.OwnerToken,
		ExpiresAt:  lock.ExpiresAt,
	}, nil
}

// ForceDelete removes every row for the key regardless of owner or status.
// It is meant for administrative recovery.
func (s *Service) ForceDelete(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	kind domain.WorkKind,
) (int64, error) {
	n, err := s.store.Delete(ctx, subjectID, userID, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to force delete lock: %w", err)
	}
	s.logger.Warn("lock force deleted",
		"subject_id", subjectID,
		"user_id", userID,
		"work_kind", kind,
		"rows", n)
	return n, nil
}

// List returns the locks for a user, or all locks for uuid.Nil.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*domain.GenerationLock, error) {
	return s.store.List(ctx, userID)
}

// Sweep deletes every expired lock and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, store.NewStoreError("lock", "sweep", "failed to delete expired locks", err)
	}
	s.metrics.LocksSwept(n)
	return n, nil
}

// sweep is the best-effort sweep run before each acquisition.
func (s *Service) sweep(ctx context.Context, now time.Time) {
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Warn("expired lock sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.metrics.LocksSwept(n)
		s.logger.Debug("expired locks swept", "count", n)
	}
}
