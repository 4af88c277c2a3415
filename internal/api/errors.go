package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-engine/internal/api/shared"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/domain/srs"
	"github.com/phrazzld/scry-engine/internal/service/auth"
	"github.com/phrazzld/scry-engine/internal/service/generation"
	"github.com/phrazzld/scry-engine/internal/service/review"
	"github.com/phrazzld/scry-engine/internal/store"
	"github.com/phrazzld/scry-engine/internal/task"
)

// ErrUnauthorized is used when a protected handler runs without a user in
// the request context.
var ErrUnauthorized = errors.New("unauthorized")

// MapErrorToStatusCode maps service errors to HTTP status codes. Unknown
// errors are internal server errors.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized

	case errors.Is(err, review.ErrItemNotOwned):
		return http.StatusForbidden

	case errors.Is(err, review.ErrItemNotFound),
		errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, generation.ErrAlreadyGenerating),
		errors.Is(err, task.ErrTaskRunning):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrSchedulerStopped):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidItemKind),
		errors.Is(err, domain.ErrInvalidContentKind),
		errors.Is(err, srs.ErrInvalidQuality),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, review.ErrInvalidUpdate),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that reveals
// nothing beyond the error's category.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, review.ErrItemNotOwned):
		return "You do not own this item"

	case errors.Is(err, review.ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, generation.ErrAlreadyGenerating):
		return "Content is already being generated"
	case errors.Is(err, task.ErrTaskRunning):
		return "Task is already running"

	case errors.Is(err, task.ErrQueueFull):
		return "Generation queue is full, try again later"
	case errors.Is(err, task.ErrSchedulerStopped):
		return "Server is shutting down"

	case errors.Is(err, domain.ErrInvalidItemKind):
		return "Invalid item kind"
	case errors.Is(err, domain.ErrInvalidContentKind):
		return "Invalid content kind"
	case errors.Is(err, srs.ErrInvalidQuality):
		return "Invalid rating"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, review.ErrInvalidUpdate):
		return "Invalid schedule update"
	case errors.Is(err, generation.ErrInvalidRequest):
		return "Invalid generation request"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Validation error"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and message for err. A non-empty
// message overrides the safe message for 4xx responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	safe := GetSafeErrorMessage(err)
	if message != "" && status < http.StatusInternalServerError {
		safe = message
	}

	var opts []shared.ResponseOption
	if status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, safe, err, opts...)
}

// SanitizeValidationError turns validator output into "Invalid <field>:
// <reason>" without echoing the submitted value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_without", "required_without_all":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof", "content_kind", "item_kind":
		return "invalid value"
	case "dive":
		return "invalid entry"
	default:
		return "validation failed"
	}
}
