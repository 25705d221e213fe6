package task

import (
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Task is a chainable wrapper around one Callable. Get evaluates it once on
// the caller's goroutine; Clone produces an independent, re-runnable copy;
// Delayed turns it into an asynchronous handle.
type Task[T any] struct {
	engine *Engine

	// factory rebuilds the callable captured at construction; composed tasks
	// rebuild their whole chain so clones never share consumed state
	factory func() Callable[T]

	slot slot[T]
}

// New creates a Task around c. The engine is used by Delayed and by the
// composition functions; it must not be nil.
func New[T any](e *Engine, c Callable[T]) *Task[T] {
	return newTask(e, c, func() Callable[T] { return c })
}

// FromFactory creates a Task whose callable is built by factory. Unlike New,
// every clone gets a freshly built callable, which suits stateful callables
// that cannot run twice.
func FromFactory[T any](e *Engine, factory func() Callable[T]) *Task[T] {
	return newTask(e, factory(), factory)
}

// FromFunc creates a Task around fn.
func FromFunc[T any](e *Engine, fn func() (T, error)) *Task[T] {
	return New[T](e, CallableFunc[T](fn))
}

// Value creates a Task that produces v.
func Value[T any](e *Engine, v T) *Task[T] {
	return FromFunc(e, func() (T, error) { return v, nil })
}

// Fail creates a Task that fails with err.
func Fail[T any](e *Engine, err error) *Task[T] {
	return FromFunc(e, func() (T, error) {
		var zero T
		return zero, err
	})
}

func newTask[T any](e *Engine, initial Callable[T], factory func() Callable[T]) *Task[T] {
	if e == nil {
		panic("task: nil engine")
	}
	t := &Task[T]{
		engine:  e,
		factory: factory,
	}
	t.slot.held = initial
	return t
}

// Get runs the held callable on the caller's goroutine and releases it.
// A panic inside the callable is returned as an error. Calling Get on a
// consumed task returns ErrNoCallable.
func (t *Task[T]) Get() (T, error) {
	c := t.slot.take()
	if c == nil {
		var zero T
		return zero, ErrNoCallable
	}
	defer t.slot.done()

	return invoke(c)
}

// Delayed wraps the currently held callable, not a clone, in a DelayedTask
// bound to one future execution.
func (t *Task[T]) Delayed() *DelayedTask[T] {
	return newDelayedTask(t.engine, t.slot.peek(), t.factory)
}

// Clone returns an independent Task built from the callable captured at
// construction. It works even after the receiver was consumed by Get.
func (t *Task[T]) Clone() *Task[T] {
	return newTask(t.engine, t.factory(), t.factory)
}

// Engine returns the engine the task is bound to
func (t *Task[T]) Engine() *Engine {
	return t.engine
}

func (t *Task[T]) getAny() (any, error) {
	return t.Get()
}

func (t *Task[T]) cancelAny() bool {
	return t.slot.cancel()
}

func (t *Task[T]) cloneAny() Runnable {
	return t.Clone()
}

// invoke calls c, converting a panic into an error
func invoke[T any](c Callable[T]) (v T, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		v, err = c.Call()
	})
	if r := pc.Recovered(); r != nil {
		var zero T
		return zero, r.AsError()
	}
	return v, err
}

// slot holds a callable until it runs. While running it is kept as
// inflight so cancellation can still reach it.
type slot[T any] struct {
	mu       sync.Mutex
	held     Callable[T]
	inflight Callable[T]
}

// take moves the held callable to inflight and returns it
func (s *slot[T]) take() Callable[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.held
	s.held = nil
	s.inflight = c
	return c
}

// done releases the inflight callable
func (s *slot[T]) done() {
	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
}

func (s *slot[T]) peek() Callable[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// cancel forwards cancellation to whichever callable the slot references
func (s *slot[T]) cancel() bool {
	s.mu.Lock()
	c := s.held
	if c == nil {
		c = s.inflight
	}
	s.mu.Unlock()

	if c == nil {
		return false
	}
	return SendCancel(c)
}
