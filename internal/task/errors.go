package task

import "errors"

// Common errors returned by tasks, executors and the dispatcher
var (
	// ErrNoCallable is returned when a task's callable was already consumed
	ErrNoCallable = errors.New("task has no callable: already consumed")

	// ErrCancelled is returned by composed callables that observed cancellation
	ErrCancelled = errors.New("task cancelled")

	// ErrAlreadyExecuted is returned when a DelayedTask is executed twice
	ErrAlreadyExecuted = errors.New("delayed task already executed")

	// ErrPoolClosed is returned when submitting to a stopped worker pool
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolFull is returned when the worker pool's job buffer is full
	ErrPoolFull = errors.New("worker pool is full")

	// ErrDispatcherClosed is returned when posting to a stopped dispatcher
	ErrDispatcherClosed = errors.New("result dispatcher is closed")
)
