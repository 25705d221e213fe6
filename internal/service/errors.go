package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the job service. Callers check them with
// errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrJobNotFound indicates that no running, scheduled or recorded job
	// exists under the requested tag.
	// API layer should map this to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobConflict indicates that a job is already running or scheduled
	// under the requested tag.
	// API layer should map this to HTTP 409 Conflict.
	ErrJobConflict = errors.New("job already exists")

	// ErrInvalidJobRequest indicates that a job request failed validation.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidJobRequest = errors.New("invalid job request")

	// ErrEngineUnavailable indicates that the task engine refused the job,
	// usually because it is shutting down.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrEngineUnavailable = errors.New("task engine unavailable")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit_job", "cancel_job")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
// It returns not-found and conflict sentinels directly without wrapping.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrJobNotFound) {
		return ErrJobNotFound
	}
	if errors.Is(err, ErrJobConflict) {
		return ErrJobConflict
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
