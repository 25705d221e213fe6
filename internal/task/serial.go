package task

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Serial returns a Task that runs tasks strictly in order on one goroutine.
// The first failure aborts the remaining steps and fails the aggregate;
// cancellation observed between steps yields ErrCancelled.
func Serial(e *Engine, tasks ...Runnable) *Task[[]any] {
	tasks = append([]Runnable(nil), tasks...)
	return newTask[[]any](e,
		newSerialCallable(tasks),
		func() Callable[[]any] { return newSerialCallable(cloneAll(tasks)) },
	)
}

// SerialThen runs tasks serially and converts their results with fn.
func SerialThen[V any](e *Engine, fn func([]any) (V, error), tasks ...Runnable) *Task[V] {
	return Map(Serial(e, tasks...), fn)
}

// WorkSerial runs tasks in order on the calling goroutine and blocks until
// they finish. It is meant for callers already on a background goroutine.
func WorkSerial(tasks ...Runnable) ([]any, error) {
	return newSerialCallable(tasks).Call()
}

type serialCallable struct {
	tasks     []Runnable
	cancelled atomic.Bool

	mu      sync.Mutex
	current Runnable
}

func newSerialCallable(tasks []Runnable) *serialCallable {
	return &serialCallable{tasks: tasks}
}

func (c *serialCallable) Call() ([]any, error) {
	results := make([]any, len(c.tasks))
	for i, t := range c.tasks {
		c.setCurrent(t)
		if c.cancelled.Load() {
			c.setCurrent(nil)
			return nil, ErrCancelled
		}

		v, err := t.getAny()
		c.setCurrent(nil)
		if err != nil {
			if c.cancelled.Load() {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("serial step %d: %w", i, err)
		}
		results[i] = v
	}

	if c.cancelled.Load() {
		return nil, ErrCancelled
	}
	return results, nil
}

// Cancel stops further steps and forwards the signal to the running step.
func (c *serialCallable) Cancel() bool {
	first := c.cancelled.CompareAndSwap(false, true)

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil {
		current.cancelAny()
	}
	return first
}

func (c *serialCallable) setCurrent(t Runnable) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func cloneAll(tasks []Runnable) []Runnable {
	clones := make([]Runnable, len(tasks))
	for i, t := range tasks {
		clones[i] = t.cloneAny()
	}
	return clones
}
