package shared

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type of the request context keys set by the API layer
type ContextKey string

// Context keys for various values
const (
	// ClaimsContextKey is the context key for the validated token claims
	ClaimsContextKey ContextKey = "claims"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID adds traceID to the context, generating one when it is empty.
// The trace ID correlates logs and error responses.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}
