package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewedOutcome(userID, itemID uuid.UUID, kind domain.ItemKind, changed bool) *review.Outcome {
	last := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &review.Outcome{
		Item: &domain.ReviewableItem{
			ID:        itemID,
			Kind:      kind,
			UserID:    userID,
			SubjectID: uuid.New(),
			State: domain.ReviewState{
				Interval:     6,
				Repetitions:  2,
				Easiness:     2.5,
				DueDate:      last.AddDate(0, 0, 6),
				LastReviewed: &last,
				Streak:       2,
			},
		},
		Changed: changed,
	}
}

func TestReviewHandler_ReviewItem(t *testing.T) {
	t.Parallel()

	userID, itemID := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		kind        string
		body        string
		serviceErr  error
		wantStatus  int
		wantQuality srs.Quality
		wantCorrect *bool
	}{
		{name: "tier name", kind: "flashcard", body: `{"rating":"confident"}`, wantStatus: http.StatusOK, wantQuality: srs.QualityConfident},
		{name: "numeric rating", kind: "flashcard", body: `{"rating":3}`, wantStatus: http.StatusOK, wantQuality: srs.QualitySomewhat},
		{name: "numeric rating is clamped", kind: "quiz_question", body: `{"rating":9}`, wantStatus: http.StatusOK, wantQuality: 5},
		{name: "quiz correctness", kind: "quiz_question", body: `{"correct":false}`, wantStatus: http.StatusOK, wantCorrect: boolPtr(false)},
		{name: "correct on flashcard", kind: "flashcard", body: `{"correct":true}`, wantStatus: http.StatusBadRequest},
		{name: "both fields", kind: "quiz_question", body: `{"rating":"forgot","correct":true}`, wantStatus: http.StatusBadRequest},
		{name: "neither field", kind: "flashcard", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "unknown rating", kind: "flashcard", body: `{"rating":"great"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown item kind", kind: "card", body: `{"rating":"forgot"}`, wantStatus: http.StatusBadRequest},
		{name: "not found", kind: "flashcard", body: `{"rating":"forgot"}`, serviceErr: review.ErrItemNotFound, wantStatus: http.StatusNotFound, wantQuality: srs.QualityForgot},
		{name: "not owned", kind: "flashcard", body: `{"rating":"forgot"}`, serviceErr: review.ErrItemNotOwned, wantStatus: http.StatusForbidden, wantQuality: srs.QualityForgot},
		{name: "store failure", kind: "flashcard", body: `{"rating":"forgot"}`, serviceErr: errors.New("deadlock detected"), wantStatus: http.StatusInternalServerError, wantQuality: srs.QualityForgot},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockReviewService{
				ReviewItemFn: func(_ context.Context, u uuid.UUID, kind domain.ItemKind, id uuid.UUID, q srs.Quality) (*review.Outcome, error) {
					assert.Equal(t, userID, u)
					assert.Equal(t, itemID, id)
					assert.Equal(t, tc.wantQuality, q)
					if tc.serviceErr != nil {
						return nil, tc.serviceErr
					}
					return reviewedOutcome(u, id, kind, true), nil
				},
				ReviewQuizAnswerFn: func(_ context.Context, u, id uuid.UUID, correct bool) (*review.Outcome, error) {
					require.NotNil(t, tc.wantCorrect, "unexpected quiz answer")
					assert.Equal(t, *tc.wantCorrect, correct)
					return reviewedOutcome(u, id, domain.ItemKindQuizQuestion, false), nil
				},
			}

			path := fmt.Sprintf("/api/items/%s/%s/review", tc.kind, itemID)
			rec := do(t, newTestRouter(userID, nil, svc), http.MethodPost, path, tc.body)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp ReviewItemResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, itemID, resp.ItemID)
			assert.Equal(t, tc.kind, resp.ItemKind)
			assert.Equal(t, tc.wantCorrect == nil, resp.Changed)
			assert.Equal(t, "2026-05-07", resp.DueDate)
			assert.Equal(t, 6, resp.Interval)
		})
	}
}

func TestReviewHandler_ApplyBatch(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	first, second := uuid.New(), uuid.New()
	valid := fmt.Sprintf(`{"updates":[
		{"item_id":%q,"item_kind":"flashcard","interval":6,"easiness":2.5,"repetitions":2,"due_date":"2026-05-07"},
		{"item_id":%q,"item_kind":"quiz_question","interval":1,"easiness":1.96,"repetitions":0,"due_date":"2026-05-02"}
	]}`, first, second)

	tests := []struct {
		name       string
		user       uuid.UUID
		body       string
		serviceErr error
		wantStatus int
		wantCalled bool
	}{
		{name: "applied", user: userID, body: valid, wantStatus: http.StatusNoContent, wantCalled: true},
		{name: "unauthenticated", body: valid, wantStatus: http.StatusUnauthorized},
		{name: "empty batch", user: userID, body: `{"updates":[]}`, wantStatus: http.StatusBadRequest},
		{
			name:       "easiness below floor",
			user:       userID,
			body:       fmt.Sprintf(`{"updates":[{"item_id":%q,"item_kind":"flashcard","interval":1,"easiness":1.2,"repetitions":0,"due_date":"2026-05-02"}]}`, first),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad date",
			user:       userID,
			body:       fmt.Sprintf(`{"updates":[{"item_id":%q,"item_kind":"flashcard","interval":1,"easiness":2.5,"repetitions":0,"due_date":"May 2"}]}`, first),
			wantStatus: http.StatusBadRequest,
		},
		{name: "item missing rolls back", user: userID, body: valid, serviceErr: fmt.Errorf("%w: flashcard", review.ErrItemNotFound), wantStatus: http.StatusNotFound, wantCalled: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			called := false
			svc := &mockReviewService{ApplyBatchFn: func(_ context.Context, u uuid.UUID, updates []store.ScheduleUpdate) error {
				called = true
				assert.Equal(t, userID, u)
				require.Len(t, updates, 2)
				assert.Equal(t, store.ScheduleUpdate{
					ItemID:      first,
					Kind:        domain.ItemKindFlashcard,
					Interval:    6,
					Easiness:    2.5,
					Repetitions: 2,
					DueDate:     time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC),
				}, updates[0])
				assert.Equal(t, domain.ItemKindQuizQuestion, updates[1].Kind)
				return tc.serviceErr
			}}

			rec := do(t, newTestRouter(tc.user, nil, svc), http.MethodPost, "/api/reviews/batch", tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantCalled, called)
		})
	}
}

func TestNewReviewHandler_PanicsOnNil(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewReviewHandler(nil, nil) })
}

func boolPtr(b bool) *bool { return &b }
