// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/certscan/backend/internal/queue"
	"github.com/certscan/backend/internal/resizer"
	"github.com/certscan/backend/internal/results"
	"github.com/certscan/backend/internal/run"
	"github.com/certscan/backend/internal/storage"
	"github.com/certscan/backend/internal/thumbnail"
	"github.com/certscan/backend/internal/viewer"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// fromDomainError maps workspace errors onto API errors. Unknown errors
// become 500s.
func fromDomainError(err error, resource, id string) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, queue.ErrLocked), errors.Is(err, run.ErrRunInProgress):
		e := NewConflictError("a run is processing the queue")
		e.Details = err.Error()
		return e
	case errors.Is(err, resizer.ErrResizeInProgress):
		e := NewConflictError("another column is being resized")
		e.Details = err.Error()
		return e
	case errors.Is(err, queue.ErrNotQueued),
		errors.Is(err, results.ErrRowNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, thumbnail.ErrNotFound),
		errors.Is(err, resizer.ErrUnknownColumn):
		return NewNotFoundError(resource, id)
	case errors.Is(err, thumbnail.ErrPending):
		return NewServiceUnavailableError("thumbnail is still rendering")
	case errors.Is(err, queue.ErrIndexOutOfRange),
		errors.Is(err, run.ErrUnknownBackend),
		errors.Is(err, results.ErrUnknownCategory),
		errors.Is(err, resizer.ErrNotResizing),
		errors.Is(err, viewer.ErrUndecodable),
		errors.Is(err, thumbnail.ErrFailed),
		errors.Is(err, workspace.ErrUnsupportedType),
		errors.Is(err, workspace.ErrEmptyFile):
		return NewBadRequestError(err.Error(), nil)
	default:
		return NewInternalError("unexpected error", err)
	}
}

// NewErrorHandler builds the Echo error handler
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger)
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = fromDomainError(err, "resource", "")
		}

		if apiErr.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"code", apiErr.Code,
				"error", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
