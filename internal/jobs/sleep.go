package jobs

import (
	"sync"
	"time"

	"github.com/phrazzld/taskline/internal/task"
)

// Sleep is a cancellable timer callable. It returns the time actually slept,
// or task.ErrCancelled if cancelled first.
type Sleep struct {
	duration time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewSleep creates a timer callable for d
func NewSleep(d time.Duration) *Sleep {
	return &Sleep{
		duration: d,
		stop:     make(chan struct{}),
	}
}

// SleepTask wraps a timer in a Task whose clones get fresh timers.
func SleepTask(e *task.Engine, d time.Duration) *task.Task[time.Duration] {
	return task.FromFactory(e, func() task.Callable[time.Duration] {
		return NewSleep(d)
	})
}

// Call blocks until the timer fires or Cancel is called.
func (s *Sleep) Call() (time.Duration, error) {
	start := time.Now()
	timer := time.NewTimer(s.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return time.Since(start), nil
	case <-s.stop:
		return time.Since(start), task.ErrCancelled
	}
}

// Cancel wakes a pending Call. Only the first call returns true.
func (s *Sleep) Cancel() bool {
	first := false
	s.once.Do(func() {
		close(s.stop)
		first = true
	})
	return first
}
