package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
)

// SubjectStore gives read access to subjects and their collection links.
// Subjects are owned by the content-management side of the application;
// the scheduling core only checks that they still exist.
type SubjectStore interface {
	// GetByID retrieves a subject by its unique ID.
	// Returns ErrSubjectNotFound if the subject does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error)

	// IsLinked reports whether the subject is still part of the collection.
	IsLinked(ctx context.Context, collectionID, subjectID uuid.UUID) (bool, error)
}
