package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/platform/logger"
	"github.com/phrazzld/taskline/internal/service"
)

// MockHistoryService mocks the service.HistoryService interface
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) Events(ctx context.Context, tag string, limit int) ([]*events.JobEvent, error) {
	args := m.Called(ctx, tag, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*events.JobEvent), args.Error(1)
}

func (m *MockHistoryService) Prune(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHistoryService) Start() { m.Called() }

func (m *MockHistoryService) Stop() { m.Called() }

func newHistoryRouter(t *testing.T, history service.HistoryService) http.Handler {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	h := NewHistoryHandler(history, log)

	r := chi.NewRouter()
	r.Get("/api/jobs/{tag}/events", h.GetJobEvents)
	return r
}

func TestGetJobEvents(t *testing.T) {
	submitted, err := events.NewJobEvent(events.JobSubmitted, "nightly", nil)
	require.NoError(t, err)
	finished, err := events.NewJobEvent(events.JobFinished, "nightly", nil)
	require.NoError(t, err)

	history := &MockHistoryService{}
	history.On("Events", mock.Anything, "nightly", 0).
		Return([]*events.JobEvent{submitted, finished}, nil)
	history.On("Events", mock.Anything, "nightly", 1).
		Return([]*events.JobEvent{finished}, nil)
	history.On("Events", mock.Anything, "unknown", 0).
		Return(nil, service.ErrJobNotFound)
	history.On("Events", mock.Anything, "nightly", 5000).
		Return(nil, service.ErrInvalidJobRequest)
	history.On("Events", mock.Anything, "broken", 0).
		Return(nil, service.NewJobServiceError("list_events", "failed to read job history", errors.New("disk I/O error")))

	router := newHistoryRouter(t, history)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
		wantError  string
	}{
		{name: "all events", path: "/api/jobs/nightly/events", wantStatus: http.StatusOK, wantCount: 2},
		{name: "limited", path: "/api/jobs/nightly/events?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{name: "unknown tag", path: "/api/jobs/unknown/events", wantStatus: http.StatusNotFound, wantError: "Job not found"},
		{name: "non-numeric limit", path: "/api/jobs/nightly/events?limit=ten", wantStatus: http.StatusBadRequest},
		{name: "limit out of range", path: "/api/jobs/nightly/events?limit=5000", wantStatus: http.StatusBadRequest},
		{name: "store failure", path: "/api/jobs/broken/events", wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantStatus != http.StatusOK {
				if tc.wantError != "" {
					assert.Equal(t, tc.wantError, decodeError(t, w).Error)
				}
				return
			}

			var resp JobEventsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "nightly", resp.Tag)
			assert.Equal(t, tc.wantCount, resp.Count)
			assert.Len(t, resp.Events, tc.wantCount)
		})
	}

	history.AssertExpectations(t)
}
