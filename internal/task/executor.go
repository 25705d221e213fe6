package task

// Executor runs submitted functions. Execute must not block the caller on the
// submitted work; it returns an error if the function was rejected.
type Executor interface {
	Execute(fn func()) error
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(fn func()) error

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) error {
	return f(fn)
}

// SyncExecutor runs every function inline on the caller's goroutine.
// It is useful in tests and for embedders that drive their own loop.
type SyncExecutor struct{}

// Execute runs fn immediately.
func (SyncExecutor) Execute(fn func()) error {
	fn()
	return nil
}

// tryExecutor is implemented by executors that can report whether an idle
// worker accepted fn right away.
type tryExecutor interface {
	TryExecute(fn func()) bool
}

// lifecycle is implemented by executors the Engine starts and stops.
type lifecycle interface {
	Start()
	Stop()
}
