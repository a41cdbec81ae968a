package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness for the
// status endpoints.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the attendance engine.
var (
	// ErrDecryption means a stored credential blob could not be unsealed.
	// Fatal for that user's attempt only, never for the poll loop.
	ErrDecryption = New("DECRYPTION_FAILED", http.StatusInternalServerError, "failed to unseal stored credentials")
	// ErrAuthFailed means the portal rejected the stored credentials.
	ErrAuthFailed = New("AUTH_FAILED", http.StatusUnauthorized, "portal rejected stored credentials")
	// ErrPortalUnavailable is a transient portal/network failure, retryable
	// on subsequent ticks within the retry budget.
	ErrPortalUnavailable = New("PORTAL_UNAVAILABLE", http.StatusBadGateway, "portal temporarily unavailable")
	// ErrScheduleUnresolved means a lesson could not be correlated to any
	// timetable slot.
	ErrScheduleUnresolved = New("SCHEDULE_UNRESOLVED", http.StatusUnprocessableEntity, "lesson does not match any timetable slot")
	// ErrRetryExhausted means the transient-retry budget for an occurrence
	// ran out.
	ErrRetryExhausted = New("RETRY_EXHAUSTED", http.StatusGatewayTimeout, "attendance attempt retry budget exhausted")
	ErrNotFound       = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation     = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal       = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// ErrCacheMiss is the sentinel returned on a Redis cache miss.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
