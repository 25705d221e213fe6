package task

import (
	"sync"
	"sync/atomic"
)

// Map returns a Task that runs t and feeds its result into fn. A failure or
// cancellation in either stage short-circuits the remaining stage.
func Map[T, V any](t *Task[T], fn func(T) (V, error)) *Task[V] {
	return MapWith[T, V](t, MapperFunc[T, V](fn))
}

// MapWith is like Map but takes a Mapper. If m implements Cancellable it
// receives cancellation forwarded through the returned task.
func MapWith[T, V any](t *Task[T], m Mapper[T, V]) *Task[V] {
	upstream := t.factory
	return newTask(t.engine,
		newConvertCallable(t.slot.peek(), m),
		func() Callable[V] { return newConvertCallable(upstream(), m) },
	)
}

// convertCallable chains an upstream callable and a mapper. It holds an
// explicit reference to both so Cancel can walk down the chain.
type convertCallable[T, V any] struct {
	mu        sync.Mutex
	upstream  Callable[T]
	mapper    Mapper[T, V]
	cancelled atomic.Bool
}

func newConvertCallable[T, V any](upstream Callable[T], m Mapper[T, V]) *convertCallable[T, V] {
	return &convertCallable[T, V]{
		upstream: upstream,
		mapper:   m,
	}
}

// Call runs upstream then the mapper, checking for cancellation before,
// between and after the two stages. References are released afterwards.
func (c *convertCallable[T, V]) Call() (V, error) {
	var zero V

	c.mu.Lock()
	upstream, mapper := c.upstream, c.mapper
	c.mu.Unlock()
	defer c.release()

	if upstream == nil || mapper == nil {
		return zero, ErrNoCallable
	}

	if c.cancelled.Load() {
		SendCancel(upstream)
		return zero, ErrCancelled
	}

	v, err := upstream.Call()
	if err != nil {
		return zero, err
	}

	if c.cancelled.Load() {
		SendCancel(mapper)
		return zero, ErrCancelled
	}

	out, err := mapper.Map(v)
	if err != nil {
		return zero, err
	}

	if c.cancelled.Load() {
		return zero, ErrCancelled
	}
	return out, nil
}

// Cancel marks the converter cancelled and forwards the signal to the
// upstream callable and to the mapper.
func (c *convertCallable[T, V]) Cancel() bool {
	first := c.cancelled.CompareAndSwap(false, true)

	c.mu.Lock()
	upstream, mapper := c.upstream, c.mapper
	c.mu.Unlock()

	SendCancel(upstream)
	SendCancel(mapper)
	return first
}

func (c *convertCallable[T, V]) release() {
	c.mu.Lock()
	c.upstream = nil
	c.mapper = nil
	c.mu.Unlock()
}

// completionCallable runs onDone after upstream returns, whatever the
// outcome. It never runs if its holder was cancelled before start.
type completionCallable[T any] struct {
	upstream Callable[T]
	onDone   func()
}

func (c *completionCallable[T]) Call() (T, error) {
	defer c.onDone()

	if c.upstream == nil {
		var zero T
		return zero, ErrNoCallable
	}
	return c.upstream.Call()
}

func (c *completionCallable[T]) Cancel() bool {
	return SendCancel(c.upstream)
}
