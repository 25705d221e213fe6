package task

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// WorkerPool manages a fixed set of worker goroutines that run submitted
// functions. It implements Executor and handles graceful shutdown.
type WorkerPool struct {
	// jobs buffers functions submitted through Execute
	jobs chan func()

	// handoff is unbuffered: a send only succeeds when a worker is idle
	handoff chan func()

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg conc.WaitGroup

	// mu guards started/closed against concurrent submission
	mu      sync.RWMutex
	started bool
	closed  bool

	// active counts functions currently running on a worker
	active atomic.Int64

	// logger for structured logging
	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// QueueSize is the buffer size for submitted functions
	// If zero or negative, defaults to WorkerCount
	QueueSize int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
		QueueSize:   100,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	// Apply defaults for invalid config values
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = workerCount
	}

	return &WorkerPool{
		jobs:        make(chan func(), queueSize),
		handoff:     make(chan func()),
		workerCount: workerCount,
		logger:      logger.With("component", "worker_pool"),
	}
}

// Start launches the worker goroutines. Calling Start more than once, or
// after Stop, has no effect.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Go(func() { p.worker(i) })
	}
	p.logger.Debug("worker pool started", "worker_count", p.workerCount, "queue_cap", cap(p.jobs))
}

// Stop rejects further submissions, lets the workers drain every buffered
// function and waits for them to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Execute buffers fn for the next free worker. It never blocks: a full
// buffer returns ErrPoolFull and a stopped pool returns ErrPoolClosed.
func (p *WorkerPool) Execute(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- fn:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached", ErrPoolFull, cap(p.jobs))
	}
}

// TryExecute hands fn to a worker only if one is idle right now.
func (p *WorkerPool) TryExecute(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.handoff <- fn:
		return true
	default:
		return false
	}
}

// WorkerCount returns the number of workers in the pool
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// ActiveCount returns the number of functions currently running
func (p *WorkerPool) ActiveCount() int {
	return int(p.active.Load())
}

// QueuedCount returns the number of buffered functions not yet picked up
func (p *WorkerPool) QueuedCount() int {
	return len(p.jobs)
}

// worker runs functions until the job channel is closed and drained
func (p *WorkerPool) worker(id int) {
	for {
		select {
		case fn, ok := <-p.jobs:
			if !ok {
				// Channel closed and drained, stop worker
				return
			}
			p.run(fn, id)

		case fn := <-p.handoff:
			p.run(fn, id)
		}
	}
}

// run executes fn, keeping the worker alive if fn panics
func (p *WorkerPool) run(fn func(), workerID int) {
	p.active.Add(1)
	defer p.active.Add(-1)

	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		p.logger.Error("worker job panicked",
			"worker_id", workerID,
			"panic", r.Value,
			"stack", string(r.Stack))
	}
}
