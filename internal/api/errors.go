package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/taskline/internal/api/shared"
	"github.com/phrazzld/taskline/internal/service"
	"github.com/phrazzld/taskline/internal/service/auth"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrInsufficientScope):
		return http.StatusForbidden

	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrJobConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidJobRequest):
		return http.StatusBadRequest

	case errors.Is(err, shared.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, service.ErrEngineUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInsufficientScope):
		return "Insufficient scope"

	case errors.Is(err, service.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, service.ErrJobConflict):
		return "A job with this tag is already running or scheduled"

	case errors.Is(err, service.ErrInvalidJobRequest):
		return SanitizeValidationError(err)

	case errors.Is(err, shared.ErrUnsupportedMediaType):
		return "Unsupported content type; use application/json or application/yaml"

	case errors.Is(err, service.ErrEngineUnavailable):
		return "Job engine unavailable, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a job request validation error into a short
// message naming the offending field.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example: "invalid job request: Key: 'JobRequest.URLs[0]' Error:Field
	// validation for 'URLs[0]' failed on the 'url' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				if len(fieldParts) >= 5 {
					return "Invalid " + field + ": " + getValidationTagMessage(fieldParts[3])
				}
				return "Invalid " + field
			}
		}
	}

	// Messages produced by the job service itself are already safe
	if msg, ok := strings.CutPrefix(errMsg, service.ErrInvalidJobRequest.Error()+": "); ok {
		return "Invalid job request: " + msg
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url":
		return "invalid URL"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "excludesall", "printascii":
		return "contains invalid characters"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response matching err, logging the full
// error in redacted form.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
