package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/store"
)

// PostgresSubjectStore implements the store.SubjectStore interface.
type PostgresSubjectStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSubjectStore creates a new PostgreSQL implementation of the SubjectStore interface.
func NewPostgresSubjectStore(db store.DBTX, logger *slog.Logger) *PostgresSubjectStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubjectStore{
		db:     db,
		logger: logger.With(slog.String("component", "subject_store")),
	}
}

// Ensure PostgresSubjectStore implements store.SubjectStore interface
var _ store.SubjectStore = (*PostgresSubjectStore)(nil)

// GetByID implements store.SubjectStore.GetByID
func (s *PostgresSubjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	var subject domain.Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, material, created_at FROM subjects WHERE id = $1`, id,
	).Scan(&subject.ID, &subject.UserID, &subject.Title, &subject.Material, &subject.CreatedAt)
	if err != nil {
		return nil, mapErrorAs(err, store.ErrSubjectNotFound, nil)
	}
	return &subject, nil
}

// IsLinked implements store.SubjectStore.IsLinked
func (s *PostgresSubjectStore) IsLinked(ctx context.Context, collectionID, subjectID uuid.UUID) (bool, error) {
	var linked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM collection_subjects WHERE collection_id = $1 AND subject_id = $2)`,
		collectionID, subjectID,
	).Scan(&linked)
	if err != nil {
		return false, MapError(err)
	}
	return linked, nil
}
