package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// ErrHandlerPanicked wraps a panic raised by a handler during delivery
var ErrHandlerPanicked = errors.New("event handler panicked")

// Fanout delivers each job event to every registered handler. Delivery is
// synchronous on the emitting goroutine and follows registration order, so
// a handler observes the events of one tag in the order they were emitted.
type Fanout struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

// NewFanout creates a Fanout with no handlers
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{logger: logger.With("component", "event_fanout")}
}

// Register appends handlers. Events already being delivered are not
// replayed to them.
func (f *Fanout) Register(handlers ...EventHandler) {
	f.mu.Lock()
	f.handlers = append(f.handlers, handlers...)
	n := len(f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		f.logger.Debug("event handler registered", "handler", fmt.Sprintf("%T", h), "handler_count", n)
	}
}

// EmitEvent hands event to every handler. A failing or panicking handler
// does not stop delivery to the rest; their errors are joined.
func (f *Fanout) EmitEvent(ctx context.Context, event *JobEvent) error {
	f.mu.RLock()
	handlers := f.handlers[:len(f.handlers):len(f.handlers)]
	f.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := f.deliver(ctx, h, event); err != nil {
			f.logger.Error("job event not handled",
				"handler", fmt.Sprintf("%T", h),
				"event_type", event.Type,
				"tag", event.Tag,
				"event_id", event.ID,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, h EventHandler, event *JobEvent) (err error) {
	if r := panics.Try(func() { err = h.HandleEvent(ctx, event) }); r != nil {
		return fmt.Errorf("%w: %v", ErrHandlerPanicked, r.Value)
	}
	return err
}
