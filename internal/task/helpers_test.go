package task

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// setupTestLogger returns a logger that discards its output
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newSyncEngine returns an engine whose workers and results both run inline,
// which makes listener delivery deterministic
func newSyncEngine() *Engine {
	return NewEngine(DefaultEngineConfig(), setupTestLogger(),
		WithWorkers(SyncExecutor{}),
		WithResultExecutor(SyncExecutor{}))
}

// newTestEngine returns a started engine with a real worker pool and
// dispatcher; it is stopped when the test ends
func newTestEngine(t *testing.T, workers int) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{WorkerCount: workers, QueueSize: 64}, setupTestLogger())
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

// waitFor fails the test if ch is not closed or written to within timeout
func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// countingCallable counts invocations and returns value or err
type countingCallable struct {
	calls atomic.Int32
	value int
	err   error
}

func (c *countingCallable) Call() (int, error) {
	c.calls.Add(1)
	return c.value, c.err
}

// blockingCallable blocks until released or cancelled
type blockingCallable struct {
	value int

	started     chan struct{}
	release     chan struct{}
	cancelCh    chan struct{}
	startOnce   sync.Once
	cancelOnce  sync.Once
	cancelCalls atomic.Int32
}

func newBlockingCallable(value int) *blockingCallable {
	return &blockingCallable{
		value:    value,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
}

func (b *blockingCallable) Call() (int, error) {
	b.startOnce.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return b.value, nil
	case <-b.cancelCh:
		return 0, ErrCancelled
	}
}

func (b *blockingCallable) Cancel() bool {
	b.cancelCalls.Add(1)
	first := false
	b.cancelOnce.Do(func() {
		close(b.cancelCh)
		first = true
	})
	return first
}

// cancellableMapper records forwarded cancellation
type cancellableMapper struct {
	cancelled atomic.Bool
}

func (m *cancellableMapper) Map(v int) (string, error) {
	return string(rune('a' + v)), nil
}

func (m *cancellableMapper) Cancel() bool {
	return m.cancelled.CompareAndSwap(false, true)
}

// outcome records what a DelayedTask delivered
type outcome struct {
	mu      sync.Mutex
	events  []string
	results []any
	errs    []error
	done    chan struct{}
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) result(v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "result")
	o.results = append(o.results, v)
}

func (o *outcome) error(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "error")
	o.errs = append(o.errs, err)
}

func (o *outcome) atLast() {
	o.mu.Lock()
	o.events = append(o.events, "at_last")
	o.mu.Unlock()
	close(o.done)
}

func (o *outcome) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// attach wires the outcome to d
func attach[T any](d *DelayedTask[T], o *outcome) *DelayedTask[T] {
	return d.
		OnResult(func(v T) { o.result(v) }).
		OnError(o.error).
		AtLast(o.atLast)
}
