package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/jobs"
	"github.com/phrazzld/taskline/internal/task"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newSyncEngine runs tasks and listeners inline, so a submitted job has
// finished and reported all its events by the time Submit returns
func newSyncEngine() *task.Engine {
	return task.NewEngine(task.DefaultEngineConfig(), setupTestLogger(),
		task.WithWorkers(task.SyncExecutor{}),
		task.WithResultExecutor(task.SyncExecutor{}))
}

func newAsyncEngine(t *testing.T) *task.Engine {
	t.Helper()
	e := task.NewEngine(task.EngineConfig{WorkerCount: 4, QueueSize: 32}, setupTestLogger())
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

// eventLog records the type of every emitted event
type eventLog struct {
	mu    sync.Mutex
	types map[string][]string
}

func (l *eventLog) HandleEvent(_ context.Context, event *events.JobEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.types == nil {
		l.types = make(map[string][]string)
	}
	l.types[event.Tag] = append(l.types[event.Tag], event.Type)
	return nil
}

func (l *eventLog) For(tag string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types[tag]...)
}

// testHarness wires a job service to a real emitter, recorder and queue
type testHarness struct {
	service  JobService
	queue    *task.TaskQueue
	recorder *StatusRecorder
	events   *eventLog
}

func newHarness(t *testing.T, e *task.Engine, config JobServiceConfig) *testHarness {
	t.Helper()

	logger := setupTestLogger()
	queue := task.NewTaskQueue(logger)
	recorder := NewStatusRecorder(0)
	log := &eventLog{}

	emitter := events.NewFanout(logger)
	emitter.Register(recorder)
	emitter.Register(log)

	fetcher := jobs.NewFetcher(nil, jobs.DefaultFetcherConfig(), logger)
	svc, err := NewJobService(e, queue, fetcher, emitter, recorder, config, logger)
	require.NoError(t, err)

	return &testHarness{
		service:  svc,
		queue:    queue,
		recorder: recorder,
		events:   log,
	}
}

const testPage = `<html><head><title>Fixture</title></head><body><a href="/x">x</a></body></html>`

// siteServer serves /ok as HTML, fails /fail with 500 and holds /block
// until the request is cancelled or the server closes. Hits are counted
// per path.
type siteServer struct {
	*httptest.Server
	hits    sync.Map
	release chan struct{}
	blocked chan struct{}
	once    sync.Once
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{
		release: make(chan struct{}),
		blocked: make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		counter.(*atomic.Int32).Add(1)

		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		case "/block":
			s.once.Do(func() { close(s.blocked) })
			select {
			case <-r.Context().Done():
			case <-s.release:
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, testPage)
		}
	}))
	t.Cleanup(func() {
		close(s.release)
		s.Close()
	})
	return s
}

func (s *siteServer) Hits(path string) int32 {
	counter, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int32).Load()
}

// MockEventEmitter mocks the events.EventEmitter interface
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.JobEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
