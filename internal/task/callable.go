package task

// Callable is the atomic unit of deferred work: it produces a T or fails.
type Callable[T any] interface {
	Call() (T, error)
}

// CallableFunc adapts an ordinary function to the Callable interface.
type CallableFunc[T any] func() (T, error)

// Call runs f.
func (f CallableFunc[T]) Call() (T, error) {
	return f()
}

// Cancellable is implemented by units of work that accept a best-effort,
// cooperative cancellation signal. Cancel reports whether this call moved the
// receiver into the cancelled state.
type Cancellable interface {
	Cancel() bool
}

// Mapper transforms the result of an upstream callable.
type Mapper[T, V any] interface {
	Map(T) (V, error)
}

// MapperFunc adapts an ordinary function to the Mapper interface.
type MapperFunc[T, V any] func(T) (V, error)

// Map runs f.
func (f MapperFunc[T, V]) Map(v T) (V, error) {
	return f(v)
}

// SendCancel forwards a cancellation signal to v if it implements Cancellable.
// It returns false for nil values and values without the capability.
func SendCancel(v any) bool {
	if c, ok := v.(Cancellable); ok && c != nil {
		return c.Cancel()
	}
	return false
}

// Runnable is implemented by every *Task[T]. It lets tasks with different
// result types be composed together by Serial and Parallel.
type Runnable interface {
	getAny() (any, error)
	cancelAny() bool
	cloneAny() Runnable
}
