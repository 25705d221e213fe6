package task

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Parallel returns a Task that hands every constituent to the worker pool
// and joins them in their original order. A failing constituent does not
// abort its siblings: its slot in the result holds the error, and the
// aggregate itself succeeds. Callers must check each slot.
//
// Cancelling the aggregate while it joins cancels every incomplete
// sub-execution and yields ErrCancelled.
func Parallel(e *Engine, tasks ...Runnable) *Task[[]any] {
	return newParallelTask(e, false, tasks)
}

// ParallelThen runs tasks in parallel and converts their results with fn.
func ParallelThen[V any](e *Engine, fn func([]any) (V, error), tasks ...Runnable) *Task[V] {
	return Map(Parallel(e, tasks...), fn)
}

// WorkParallel runs tasks on the worker pool and blocks until all of them
// finish. Failed slots hold their error. It must not be called from the
// result dispatcher, since constituents may post back to it.
func WorkParallel(e *Engine, tasks ...Runnable) []any {
	results, _ := newParallelCallable(e, false, tasks).Call()
	return results
}

// newParallelTask builds a parallel aggregate. When strict is set the first
// failed slot, in constituent order, fails the aggregate; typed variants use
// it because a []T has no room for an error.
func newParallelTask(e *Engine, strict bool, tasks []Runnable) *Task[[]any] {
	tasks = append([]Runnable(nil), tasks...)
	return newTask[[]any](e,
		newParallelCallable(e, strict, tasks),
		func() Callable[[]any] { return newParallelCallable(e, strict, cloneAll(tasks)) },
	)
}

type parallelCallable struct {
	engine *Engine
	tasks  []Runnable
	strict bool

	cancelled atomic.Bool
	cancelCh  chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	futures []*future
}

func newParallelCallable(e *Engine, strict bool, tasks []Runnable) *parallelCallable {
	return &parallelCallable{
		engine:   e,
		tasks:    tasks,
		strict:   strict,
		cancelCh: make(chan struct{}),
	}
}

func (c *parallelCallable) Call() ([]any, error) {
	futures := make([]*future, len(c.tasks))
	for i, t := range c.tasks {
		futures[i] = newFuture(t)
	}
	c.mu.Lock()
	c.futures = futures
	c.mu.Unlock()

	for _, f := range futures {
		if c.cancelled.Load() {
			break
		}
		c.engine.submit(f.run)
	}

	results := make([]any, len(futures))
	for i, f := range futures {
		select {
		case <-f.done:
		case <-c.cancelCh:
			cancelFutures(futures)
			return nil, ErrCancelled
		}

		if f.err != nil {
			if c.strict {
				cancelFutures(futures[i+1:])
				return nil, fmt.Errorf("parallel slot %d: %w", i, f.err)
			}
			results[i] = f.err
			continue
		}
		results[i] = f.value
	}

	if c.cancelled.Load() {
		return nil, ErrCancelled
	}
	return results, nil
}

// Cancel wakes the join and forwards the signal to every sub-execution.
func (c *parallelCallable) Cancel() bool {
	first := c.cancelled.CompareAndSwap(false, true)
	c.closeOnce.Do(func() { close(c.cancelCh) })

	c.mu.Lock()
	futures := c.futures
	c.mu.Unlock()
	cancelFutures(futures)
	return first
}

// future is one constituent's sub-execution
type future struct {
	task      Runnable
	done      chan struct{}
	value     any
	err       error
	cancelled atomic.Bool
}

func newFuture(t Runnable) *future {
	return &future{
		task: t,
		done: make(chan struct{}),
	}
}

func (f *future) run() {
	defer close(f.done)
	if f.cancelled.Load() {
		f.err = ErrCancelled
		return
	}
	f.value, f.err = f.task.getAny()
}

func (f *future) cancel() {
	if f.cancelled.CompareAndSwap(false, true) {
		f.task.cancelAny()
	}
}

func cancelFutures(futures []*future) {
	for _, f := range futures {
		select {
		case <-f.done:
		default:
			f.cancel()
		}
	}
}
