package store

import (
	"context"
	"time"

	"github.com/phrazzld/taskline/internal/events"
)

// EventStore archives job lifecycle events after the fact. It is a history
// of what happened to jobs, not a queue: nothing is ever replayed from it.
type EventStore interface {
	// SaveEvent archives one event. Saving an event whose ID is already
	// archived returns ErrEventExists.
	SaveEvent(ctx context.Context, event *events.JobEvent) error

	// ListEvents returns up to limit archived events of tag, oldest first.
	ListEvents(ctx context.Context, tag string, limit int) ([]*events.JobEvent, error)

	// DeleteBefore removes events created before cutoff and returns how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
