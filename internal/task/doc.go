// Package task provides a small composition engine for deferred work.
//
// A Task wraps a Callable and can be evaluated synchronously (Get), transformed
// (Map), cloned, or turned into a DelayedTask that runs on a worker pool and
// delivers its result, error and completion callbacks on a single dispatcher
// goroutine. Tasks compose serially (fail-fast) or in parallel (each slot keeps
// its own error). A TaskQueue tracks in-flight DelayedTasks by tag so they can
// be cancelled by tag, by predicate, or all at once.
//
// Cancellation is cooperative: callables that own interruptible resources
// implement Cancellable and receive the signal through every composed layer.
package task
