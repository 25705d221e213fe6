package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted for every submitted job
const (
	JobScheduled = "job_scheduled"
	JobSubmitted = "job_submitted"
	JobSucceeded = "job_succeeded"
	JobFailed    = "job_failed"
	JobCancelled = "job_cancelled"
	JobFinished  = "job_finished"
)

// JobEvent records one step in the lifecycle of a submitted job. It carries
// the job's tag and a JSON detail without depending on the task package.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Job* lifecycle constants
	Type string `json:"type"`

	// Tag identifies the job in the task queue
	Tag string `json:"tag"`

	// Detail contains type-specific data serialized as JSON
	Detail json.RawMessage `json:"detail,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalDetail decodes the event detail into the provided structure.
func (e *JobEvent) UnmarshalDetail(v interface{}) error {
	return json.Unmarshal(e.Detail, v)
}

// NewJobEvent creates a JobEvent with the given type, tag and detail. A nil
// detail leaves the Detail field empty.
func NewJobEvent(eventType, tag string, detail interface{}) (*JobEvent, error) {
	var raw json.RawMessage
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Tag:       tag,
		Detail:    raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventHandlerFunc adapts an ordinary function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
