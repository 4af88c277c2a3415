package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSubjectStore_GetByID(t *testing.T) {
	t.Parallel()
	id, userID := uuid.New(), uuid.New()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		s := NewPostgresSubjectStore(db, nil)

		mock.ExpectQuery(`SELECT id, user_id, title, material, created_at FROM subjects WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "material", "created_at"}).
				AddRow(id.String(), userID.String(), "Biology", "Cells are...", today))

		subject, err := s.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, userID, subject.UserID)
		assert.Equal(t, "Biology", subject.Title)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		s := NewPostgresSubjectStore(db, nil)

		mock.ExpectQuery(`FROM subjects`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "material", "created_at"}))

		_, err := s.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrSubjectNotFound)
	})
}

func TestPostgresSubjectStore_IsLinked(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	s := NewPostgresSubjectStore(db, nil)
	collectionID, subjectID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(collectionID, subjectID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	linked, err := s.IsLinked(context.Background(), collectionID, subjectID)
	require.NoError(t, err)
	assert.False(t, linked)
}
