package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskline/internal/config"
	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/platform/logger"
	"github.com/phrazzld/taskline/internal/store"
)

// openTestDB opens a migrated in-memory SQLite database
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open(context.Background(), config.HistoryConfig{
		Enabled: true,
		Driver:  DriverSQLite,
		DSN:     ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log, _ := logger.GetTestLogger(t)
	require.NoError(t, Migrate(context.Background(), db, log))
	return db
}

func newEvent(t *testing.T, eventType, tag string, at time.Time, detail interface{}) *events.JobEvent {
	t.Helper()
	ev, err := events.NewJobEvent(eventType, tag, detail)
	require.NoError(t, err)
	ev.CreatedAt = at
	return ev
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.HistoryConfig{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	log, _ := logger.GetTestLogger(t)

	require.NoError(t, Migrate(context.Background(), db, log))

	var version int64
	require.NoError(t, db.Get(&version, `SELECT MAX(version_id) FROM schema_migrations`))
	assert.Equal(t, int64(1), version)
}

func TestEventStore_SaveAndList(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	submitted := newEvent(t, events.JobSubmitted, "a", base, map[string]any{"mode": "parallel"})
	finished := newEvent(t, events.JobFinished, "a", base.Add(2*time.Second), nil)
	other := newEvent(t, events.JobSubmitted, "b", base.Add(time.Second), nil)

	// Saved out of order; listing sorts by creation time
	for _, ev := range []*events.JobEvent{finished, other, submitted} {
		require.NoError(t, es.SaveEvent(ctx, ev))
	}

	got, err := es.ListEvents(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, submitted.ID, got[0].ID)
	assert.Equal(t, events.JobSubmitted, got[0].Type)
	assert.True(t, base.Equal(got[0].CreatedAt), "got %v", got[0].CreatedAt)
	var detail map[string]string
	require.NoError(t, json.Unmarshal(got[0].Detail, &detail))
	assert.Equal(t, "parallel", detail["mode"])

	assert.Equal(t, finished.ID, got[1].ID)
	assert.Empty(t, got[1].Detail)

	none, err := es.ListEvents(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventStore_ListKeepsNewest(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ev := newEvent(t, events.JobFinished, "a", base.Add(time.Duration(i)*time.Minute), nil)
		ids = append(ids, ev.ID)
		require.NoError(t, es.SaveEvent(ctx, ev))
	}

	got, err := es.ListEvents(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[3], got[0].ID)
	assert.Equal(t, ids[4], got[1].ID)
}

func TestEventStore_Duplicate(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(openTestDB(t))
	ev := newEvent(t, events.JobSubmitted, "a", time.Now().UTC(), nil)

	require.NoError(t, es.SaveEvent(ctx, ev))

	err := es.SaveEvent(ctx, ev)
	assert.ErrorIs(t, err, store.ErrEventExists)
	assert.True(t, store.IsDuplicateError(err))

	// Redelivery through the handler is absorbed
	assert.NoError(t, es.HandleEvent(ctx, ev))
}

func TestEventStore_InvalidEvent(t *testing.T) {
	es := NewEventStore(openTestDB(t))

	err := es.SaveEvent(context.Background(), &events.JobEvent{ID: uuid.New(), Type: events.JobSubmitted})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	assert.Error(t, es.HandleEvent(context.Background(), nil))
}

func TestEventStore_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, es.SaveEvent(ctx, newEvent(t, events.JobSubmitted, "a", base.Add(-48*time.Hour), nil)))
	require.NoError(t, es.SaveEvent(ctx, newEvent(t, events.JobFinished, "a", base.Add(-25*time.Hour), nil)))
	kept := newEvent(t, events.JobSubmitted, "a", base.Add(-time.Hour), nil)
	require.NoError(t, es.SaveEvent(ctx, kept))

	n, err := es.DeleteBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := es.ListEvents(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, kept.ID, got[0].ID)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unmapped", errors.New("connection reset"), nil},
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"postgres unique", &pgconn.PgError{Code: uniqueViolationCode}, store.ErrDuplicate},
		{"postgres not null", &pgconn.PgError{Code: notNullViolationCode, ColumnName: "tag"}, store.ErrInvalidEntity},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, store.ErrDuplicate},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, store.ErrInvalidEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError(tc.err)
			if tc.want == nil {
				assert.Equal(t, tc.err, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}

	assert.Nil(t, MapError(nil))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
}
