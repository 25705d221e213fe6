package task

import (
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Dispatcher serializes callbacks onto one goroutine, the "result thread".
// Callbacks run in the order they were posted. The queue is unbounded, so
// Execute never blocks and never drops a callback.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	started bool
	closed  bool

	// signal wakes the loop; capacity one is enough since the loop drains
	// the whole queue on every wake-up
	signal chan struct{}
	done   chan struct{}

	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. Call Start before posting callbacks
// that must run asynchronously.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("component", "result_dispatcher"),
	}
}

// Start launches the dispatcher goroutine.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.loop()
}

// Stop rejects further callbacks and waits until every pending callback ran.
// If the dispatcher was never started, pending callbacks run on the caller.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	if !started {
		for _, fn := range d.take() {
			d.run(fn)
		}
		return
	}

	d.wake()
	<-d.done
}

// Execute posts fn for delivery on the dispatcher goroutine.
func (d *Dispatcher) Execute(fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	d.wake()
	return nil
}

// Len returns the number of callbacks waiting for delivery
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) take() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := d.queue
	d.queue = nil
	return batch
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for range d.signal {
		for {
			batch := d.take()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				d.run(fn)
			}
		}

		d.mu.Lock()
		finished := d.closed && len(d.queue) == 0
		d.mu.Unlock()
		if finished {
			return
		}
	}
}

// run invokes one callback; a panicking listener is logged and does not stop
// later deliveries.
func (d *Dispatcher) run(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		d.logger.Error("listener panicked",
			"panic", r.Value,
			"stack", string(r.Stack))
	}
}
