// Package errors defines the sentinel error taxonomy shared across the
// relevancy engine, plus an AppError wrapper carrying an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput marks malformed or missing required fields on a scoring
	// call, e.g. a query with no result items. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing node in the relevancy store.
	ErrNotFound = errors.New("not found")
	// ErrStore marks a read or write failure against the relevancy store.
	ErrStore = errors.New("store error")
	// ErrSearch marks a failure of the external product search API.
	ErrSearch = errors.New("search error")
	// ErrRollupFailed marks an aborted rollup pipeline.
	ErrRollupFailed = errors.New("rollup failed")
	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)

// AppError pairs a sentinel with a human-readable message and an HTTP status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError wrapping a sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status to report it with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrSearch), errors.Is(err, ErrStore):
		return http.StatusBadGateway
	case errors.Is(err, ErrRollupFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
