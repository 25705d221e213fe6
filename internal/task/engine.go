package task

import (
	"log/slog"
	"sync"
)

// EngineConfig holds configuration for the task engine
type EngineConfig struct {
	// WorkerCount determines how many workers run background callables
	WorkerCount int

	// QueueSize determines the buffer size of the worker pool
	QueueSize int
}

// DefaultEngineConfig returns an EngineConfig with reasonable defaults
func DefaultEngineConfig() EngineConfig {
	pool := DefaultWorkerPoolConfig()
	return EngineConfig{
		WorkerCount: pool.WorkerCount,
		QueueSize:   pool.QueueSize,
	}
}

// EngineOption customizes an Engine built by NewEngine
type EngineOption func(*Engine)

// WithWorkers replaces the default worker pool with exec.
func WithWorkers(exec Executor) EngineOption {
	return func(e *Engine) {
		e.workers = exec
	}
}

// WithResultExecutor replaces the default dispatcher with exec.
// Callbacks are only race-free if exec runs them one at a time.
func WithResultExecutor(exec Executor) EngineOption {
	return func(e *Engine) {
		e.results = exec
	}
}

// Engine owns the two executors every task needs: the worker pool that runs
// callables and the dispatcher that delivers listener callbacks. It is
// created once at startup, passed explicitly to the functions of this
// package, and stopped at teardown.
type Engine struct {
	workers Executor
	results Executor
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewEngine creates an Engine backed by a WorkerPool and a Dispatcher unless
// options substitute other executors.
func NewEngine(config EngineConfig, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger: logger.With("component", "task_engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.workers == nil {
		e.workers = NewWorkerPool(WorkerPoolConfig{
			WorkerCount: config.WorkerCount,
			QueueSize:   config.QueueSize,
		}, logger)
	}
	if e.results == nil {
		e.results = NewDispatcher(logger)
	}

	return e
}

// Start launches the executors owned by the engine
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true

	for _, exec := range []Executor{e.results, e.workers} {
		if l, ok := exec.(lifecycle); ok {
			l.Start()
		}
	}
	e.logger.Info("task engine started")
}

// Stop drains the worker pool first, so outcomes of buffered work are still
// posted, then drains the dispatcher.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false

	for _, exec := range []Executor{e.workers, e.results} {
		if l, ok := exec.(lifecycle); ok {
			l.Stop()
		}
	}
	e.logger.Info("task engine stopped")
}

// Workers returns the executor that runs background callables
func (e *Engine) Workers() Executor {
	return e.workers
}

// Results returns the executor that delivers listener callbacks
func (e *Engine) Results() Executor {
	return e.results
}

// Logger returns the engine's logger
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// submit runs fn on the worker pool when an idle worker can take it, falls
// back to buffering it, and finally runs it on the calling goroutine. It is
// used for sub-executions whose caller is about to block on them.
func (e *Engine) submit(fn func()) {
	if te, ok := e.workers.(tryExecutor); ok {
		if te.TryExecute(fn) {
			return
		}
		// Every worker is busy and may be blocked joining on us: caller runs
		fn()
		return
	}
	if err := e.workers.Execute(fn); err != nil {
		e.logger.Debug("sub-execution rejected, running on caller", "error", err)
		fn()
	}
}
