package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/task"
)

// EnqueueGenerationRequest is the body of POST /subjects/{subjectID}/generations.
type EnqueueGenerationRequest struct {
	ContentKind   string            `json:"content_kind"             validate:"required,content_kind"`
	Quantity      int               `json:"quantity,omitempty"       validate:"gte=0,lte=50"`
	CollectionID  *uuid.UUID        `json:"collection_id,omitempty"`
	AutoGenerated bool              `json:"auto_generated,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"          validate:"max=16,dive,keys,max=64,endkeys,max=2000"`
}

// EnqueueGenerationResponse is returned with 202 Accepted.
type EnqueueGenerationResponse struct {
	TaskID uuid.UUID      `json:"task_id"`
	State  task.TaskState `json:"state"`
}

// WarmupResponse is returned with 202 Accepted for a queued cache warmup.
type WarmupResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Rating is a review quality given either as a tier name ("forgot",
// "somewhat", "confident") or as a number on the 0..5 scale.
type Rating srs.Quality

// UnmarshalJSON accepts a JSON string or number.
func (r *Rating) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	q, err := srs.ParseQuality(s)
	if err != nil {
		return err
	}
	*r = Rating(q)
	return nil
}

// ReviewItemRequest is the body of POST /items/{itemKind}/{itemID}/review.
// Exactly one of Rating and Correct must be set; Correct applies to quiz
// questions only.
type ReviewItemRequest struct {
	Rating  *Rating `json:"rating,omitempty"  validate:"required_without=Correct,excluded_with=Correct"`
	Correct *bool   `json:"correct,omitempty" validate:"required_without=Rating"`
}

// ReviewItemResponse is the reviewed item and whether its schedule changed.
type ReviewItemResponse struct {
	ItemID       uuid.UUID  `json:"item_id"`
	ItemKind     string     `json:"item_kind"`
	SubjectID    uuid.UUID  `json:"subject_id"`
	Changed      bool       `json:"changed"`
	Interval     int        `json:"interval"`
	Repetitions  int        `json:"repetitions"`
	Easiness     float64    `json:"easiness"`
	DueDate      string     `json:"due_date"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	Streak       int        `json:"streak"`
	Lapses       int        `json:"lapses"`
}

// ScheduleUpdateRequest is one entry of a batch review.
type ScheduleUpdateRequest struct {
	ItemID      uuid.UUID `json:"item_id"     validate:"required"`
	ItemKind    string    `json:"item_kind"   validate:"required,item_kind"`
	Interval    int       `json:"interval"    validate:"gte=1"`
	Easiness    float64   `json:"easiness"    validate:"gte=1.3"`
	Repetitions int       `json:"repetitions" validate:"gte=0"`
	DueDate     string    `json:"due_date"    validate:"required,datetime=2006-01-02"`
}

// BatchReviewRequest is the body of POST /reviews/batch.
type BatchReviewRequest struct {
	Updates []ScheduleUpdateRequest `json:"updates" validate:"required,min=1,max=500,dive"`
}

// CancelTasksResponse reports how many queued tasks a bulk cancel removed.
type CancelTasksResponse struct {
	Canceled int `json:"canceled"`
}

const dateLayout = "2006-01-02"

func outcomeToResponse(out *review.Outcome) ReviewItemResponse {
	item := out.Item
	return ReviewItemResponse{
		ItemID:       item.ID,
		ItemKind:     string(item.Kind),
		SubjectID:    item.SubjectID,
		Changed:      out.Changed,
		Interval:     item.State.Interval,
		Repetitions:  item.State.Repetitions,
		Easiness:     item.State.Easiness,
		DueDate:      item.State.DueDate.Format(dateLayout),
		LastReviewed: item.State.LastReviewed,
		Streak:       item.State.Streak,
		Lapses:       item.State.Lapses,
	}
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %s: %w", strconv.Quote(s), err)
	}
	return d, nil
}
