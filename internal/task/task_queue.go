package task

import (
	"log/slog"
	"sort"
	"sync"
)

// Handle is the cancellation surface of a queued DelayedTask of any type
type Handle interface {
	Cancel() bool
}

// TaskQueue is a tag-keyed registry of live DelayedTasks. Entries remove
// themselves when their callable returns, and can be cancelled by tag, by
// predicate, or all at once. It is safe for concurrent use.
type TaskQueue struct {
	mu      sync.RWMutex
	entries map[string]Handle
	logger  *slog.Logger
}

// NewTaskQueue creates an empty task queue
func NewTaskQueue(logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		entries: make(map[string]Handle),
		logger:  logger.With("component", "task_queue"),
	}
}

// Enqueue wraps t so that its entry is removed once its callable returns,
// converts it to a DelayedTask, registers that under tag and returns it. The
// caller still has to Execute it.
//
// An existing entry under the same tag is replaced without being cancelled.
// An empty tag is not registered. Cancelling the returned task directly,
// instead of through the queue, before it starts leaves its entry in place.
func Enqueue[T any](q *TaskQueue, tag string, t *Task[T]) *DelayedTask[T] {
	var d *DelayedTask[T]
	hooked := newTask(t.engine,
		Callable[T](&completionCallable[T]{
			upstream: t.slot.peek(),
			onDone:   func() { q.removeIf(tag, d) },
		}),
		t.factory,
	)

	d = hooked.Delayed()
	if tag == "" {
		q.logger.Debug("empty tag, task not registered", "task_id", d.ID())
		return d
	}

	q.mu.Lock()
	_, replaced := q.entries[tag]
	q.entries[tag] = d
	q.mu.Unlock()

	q.logger.Debug("task enqueued",
		"tag", tag,
		"task_id", d.ID(),
		"replaced", replaced)
	return d
}

// Exist reports whether a live entry is registered under tag
func (q *TaskQueue) Exist(tag string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.entries[tag]
	return ok
}

// Cancel removes the entry registered under tag and cancels it.
// It reports whether an entry was found.
func (q *TaskQueue) Cancel(tag string) bool {
	q.mu.Lock()
	h, ok := q.entries[tag]
	delete(q.entries, tag)
	q.mu.Unlock()

	if !ok {
		return false
	}
	h.Cancel()
	q.logger.Debug("task cancelled by tag", "tag", tag)
	return true
}

// CancelMatching cancels and removes every entry for which match returns
// true, and returns how many entries it cancelled.
func (q *TaskQueue) CancelMatching(match func(h Handle, tag string) bool) int {
	q.mu.RLock()
	snapshot := make(map[string]Handle, len(q.entries))
	for tag, h := range q.entries {
		snapshot[tag] = h
	}
	q.mu.RUnlock()

	cancelled := 0
	for tag, h := range snapshot {
		if !match(h, tag) {
			continue
		}
		q.removeIf(tag, h)
		h.Cancel()
		cancelled++
	}

	if cancelled > 0 {
		q.logger.Debug("tasks cancelled by predicate", "count", cancelled)
	}
	return cancelled
}

// CancelAll cancels every entry and clears the registry. It returns the
// number of entries cancelled.
func (q *TaskQueue) CancelAll() int {
	q.mu.Lock()
	old := q.entries
	q.entries = make(map[string]Handle)
	q.mu.Unlock()

	for _, h := range old {
		h.Cancel()
	}

	q.logger.Info("all queued tasks cancelled", "count", len(old))
	return len(old)
}

// Tags returns a sorted snapshot of the registered tags
func (q *TaskQueue) Tags() []string {
	q.mu.RLock()
	tags := make([]string, 0, len(q.entries))
	for tag := range q.entries {
		tags = append(tags, tag)
	}
	q.mu.RUnlock()

	sort.Strings(tags)
	return tags
}

// Len returns the number of registered entries
func (q *TaskQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// removeIf deletes tag only while it still points at h, so a task replaced
// under the same tag does not de-register its successor.
func (q *TaskQueue) removeIf(tag string, h Handle) {
	if tag == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.entries[tag]; ok && cur == h {
		delete(q.entries, tag)
	}
}
