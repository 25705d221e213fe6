package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/platform/logger"
	"github.com/phrazzld/taskline/internal/store"
)

// MaxListLimit caps the number of events ListEvents returns
const MaxListLimit = 1000

// eventRow is the job_events row layout
type eventRow struct {
	ID        string         `db:"id"`
	Type      string         `db:"type"`
	Tag       string         `db:"tag"`
	Detail    sql.NullString `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r eventRow) toEvent() (*events.JobEvent, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", r.ID, err)
	}
	ev := &events.JobEvent{
		ID:        id,
		Type:      r.Type,
		Tag:       r.Tag,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.Detail.Valid {
		ev.Detail = json.RawMessage(r.Detail.String)
	}
	return ev, nil
}

// EventStore implements store.EventStore with sqlx
type EventStore struct {
	db *sqlx.DB
}

var (
	_ store.EventStore    = (*EventStore)(nil)
	_ events.EventHandler = (*EventStore)(nil)
)

// NewEventStore creates an EventStore on a migrated database
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// SaveEvent archives event
func (s *EventStore) SaveEvent(ctx context.Context, event *events.JobEvent) error {
	if event == nil || event.Tag == "" || event.Type == "" {
		return store.NewStoreError("job_event", "save", "event must have a type and a tag", store.ErrInvalidEntity)
	}

	row := eventRow{
		ID:        event.ID.String(),
		Type:      event.Type,
		Tag:       event.Tag,
		CreatedAt: event.CreatedAt.UTC(),
	}
	if len(event.Detail) > 0 {
		row.Detail = sql.NullString{String: string(event.Detail), Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO job_events (id, type, tag, detail, created_at)
		VALUES (:id, :type, :tag, :detail, :created_at)`, row)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrEventExists, row.ID)
		}
		err = MapError(err)
		logger.FromContext(ctx).Error("failed to save job event",
			"event_id", row.ID,
			"event_type", row.Type,
			"tag", row.Tag,
			"error", err)
		return store.NewStoreError("job_event", "save", "failed to insert event", err)
	}
	return nil
}

// ListEvents returns up to limit events of tag, oldest first. A limit
// outside 1..MaxListLimit is clamped.
func (s *EventStore) ListEvents(ctx context.Context, tag string, limit int) ([]*events.JobEvent, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	// The newest events are selected, then returned in chronological order
	query := s.db.Rebind(`
		SELECT id, type, tag, detail, created_at FROM (
			SELECT id, type, tag, detail, created_at
			FROM job_events
			WHERE tag = ?
			ORDER BY created_at DESC
			LIMIT ?
		) recent
		ORDER BY created_at ASC`)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, tag, limit); err != nil {
		logger.FromContext(ctx).Error("failed to list job events", "tag", tag, "error", err)
		return nil, store.NewStoreError("job_event", "list", "failed to query events", MapError(err))
	}

	out := make([]*events.JobEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toEvent()
		if err != nil {
			return nil, store.NewStoreError("job_event", "list", "corrupt event row", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// DeleteBefore removes events created before cutoff
func (s *EventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM job_events WHERE created_at < ?`),
		cutoff.UTC())
	if err != nil {
		return 0, store.NewStoreError("job_event", "delete", "failed to delete events", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("job_event", "delete", "failed to get rows affected", err)
	}
	return n, nil
}

// HandleEvent implements events.EventHandler by archiving event. A
// redelivered event that is already archived is not an error.
func (s *EventStore) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	err := s.SaveEvent(ctx, event)
	if store.IsDuplicateError(err) {
		return nil
	}
	return err
}
