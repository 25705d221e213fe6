// Package jobs provides the concrete units of work the job service composes:
// cancellable HTTP fetches, a digest mapper that summarizes fetched pages,
// and a cancellable timer. Each is a task.Callable or task.Mapper and is
// safe to cancel from another goroutine.
package jobs
