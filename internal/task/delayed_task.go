package task

import (
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// DelayedTask is a one-shot asynchronous execution handle. Attach listeners,
// then Execute once; the callable runs on a worker and every listener runs on
// the engine's result executor. The completion listener always runs exactly
// once per execution, after the result or error listener.
type DelayedTask[T any] struct {
	id      uuid.UUID
	engine  *Engine
	factory func() Callable[T]
	slot    slot[T]

	onResult func(T)
	onError  func(error)
	atLast   func()

	cancelled atomic.Bool
	executed  atomic.Bool

	logger *slog.Logger
}

func newDelayedTask[T any](e *Engine, c Callable[T], factory func() Callable[T]) *DelayedTask[T] {
	id := uuid.New()
	d := &DelayedTask[T]{
		id:      id,
		engine:  e,
		factory: factory,
		logger:  e.logger.With("task_id", id),
	}
	d.slot.held = c
	return d
}

// OnResult sets the listener that receives a successful result.
func (d *DelayedTask[T]) OnResult(fn func(T)) *DelayedTask[T] {
	d.onResult = fn
	return d
}

// OnError sets the listener that receives a failure.
func (d *DelayedTask[T]) OnError(fn func(error)) *DelayedTask[T] {
	d.onError = fn
	return d
}

// AtLast sets the listener that runs after every execution, including
// cancelled ones.
func (d *DelayedTask[T]) AtLast(fn func()) *DelayedTask[T] {
	d.atLast = fn
	return d
}

// ID returns the identifier used to correlate this handle in logs
func (d *DelayedTask[T]) ID() uuid.UUID {
	return d.id
}

// IsCancelled reports whether Cancel was called
func (d *DelayedTask[T]) IsCancelled() bool {
	return d.cancelled.Load()
}

// Cancel requests cancellation and forwards it to the callable. Only the
// call that moves the task into the cancelled state returns true.
func (d *DelayedTask[T]) Cancel() bool {
	if d == nil {
		return false
	}
	first := d.cancelled.CompareAndSwap(false, true)
	d.slot.cancel()
	if first {
		d.logger.Debug("delayed task cancelled")
	}
	return first
}

// Clone returns a fresh handle around the callable captured at construction,
// with no listeners and a clean cancellation state.
func (d *DelayedTask[T]) Clone() *DelayedTask[T] {
	return newDelayedTask(d.engine, d.factory(), d.factory)
}

// Execute submits the task to the engine's worker pool.
func (d *DelayedTask[T]) Execute() error {
	return d.ExecuteOn(d.engine.workers)
}

// ExecuteOn submits the task to exec and returns without waiting. A second
// call returns ErrAlreadyExecuted. If exec rejects the task its error is
// returned and no listener will run.
func (d *DelayedTask[T]) ExecuteOn(exec Executor) error {
	if !d.executed.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}

	onResult, onError, atLast := d.onResult, d.onError, d.atLast
	if err := exec.Execute(func() { d.run(onResult, onError, atLast) }); err != nil {
		d.logger.Warn("delayed task rejected by executor", "error", err)
		return err
	}
	return nil
}

// run is the body executed on a worker
func (d *DelayedTask[T]) run(onResult func(T), onError func(error), atLast func()) {
	defer d.post("at_last", atLast)

	if d.cancelled.Load() {
		d.logger.Debug("delayed task cancelled before start")
		return
	}

	c := d.slot.take()
	var (
		v   T
		err error
	)
	if c == nil {
		err = ErrNoCallable
	} else {
		v, err = invoke(c)
	}
	d.slot.done()

	if d.cancelled.Load() {
		d.logger.Debug("delayed task cancelled while running, dropping outcome",
			"failed", err != nil)
		return
	}

	if err != nil {
		if onError == nil {
			d.logger.Warn("delayed task failed with no error listener", "error", err)
			return
		}
		d.post("error", func() { onError(err) })
		return
	}

	if onResult == nil {
		d.logger.Debug("result listener not set, skipping delivery")
		return
	}
	d.post("result", func() { onResult(v) })
}

// post hands fn to the result executor
func (d *DelayedTask[T]) post(listener string, fn func()) {
	if fn == nil {
		d.logger.Debug("listener not set, skipping delivery", "listener", listener)
		return
	}
	if err := d.engine.results.Execute(fn); err != nil {
		d.logger.Error("failed to dispatch listener",
			"listener", listener,
			"error", err)
	}
}
