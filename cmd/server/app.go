package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/phrazzld/taskline/internal/api"
	"github.com/phrazzld/taskline/internal/config"
	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/jobs"
	"github.com/phrazzld/taskline/internal/platform/database"
	"github.com/phrazzld/taskline/internal/service"
	"github.com/phrazzld/taskline/internal/service/auth"
	"github.com/phrazzld/taskline/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Task engine
	engine *task.Engine
	queue  *task.TaskQueue

	// Event system
	eventEmitter *events.Fanout
	statuses     *service.StatusRecorder
	eventStream  *api.EventStream
	eventBus     *events.Bus
	busDone      chan struct{}

	// History archive, nil when disabled
	db *sqlx.DB

	// Service interfaces
	tokenService   auth.TokenService
	jobService     service.JobService
	historyService service.HistoryService
}

// newApplication creates a new application instance with all dependencies
// initialized. The engine is started; Run starts the scheduler and serves
// HTTP.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.tokenService, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logger.Info("Token authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.engine = task.NewEngine(task.EngineConfig{
		WorkerCount: cfg.Engine.WorkerCount,
		QueueSize:   cfg.Engine.QueueSize,
	}, logger)
	app.queue = task.NewTaskQueue(logger)

	// Status recording and streaming both observe the lifecycle events
	app.eventEmitter = events.NewFanout(logger)
	app.statuses = service.NewStatusRecorder(0)
	app.eventStream = api.NewEventStream(0, logger)
	app.eventEmitter.Register(app.statuses)
	app.eventEmitter.Register(app.eventStream)

	if cfg.History.Enabled {
		if err := app.setupHistory(); err != nil {
			app.cleanup(context.Background())
			return nil, err
		}
	}

	fetcher := jobs.NewFetcher(
		&http.Client{},
		jobs.FetcherConfig{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second},
		logger,
	)

	app.jobService, err = service.NewJobService(
		app.engine,
		app.queue,
		fetcher,
		app.eventEmitter,
		app.statuses,
		service.JobServiceConfig{
			MaxURLs:       cfg.Fetch.MaxURLs,
			DefaultShards: cfg.Engine.ShardCount,
		},
		logger,
	)
	if err != nil {
		app.cleanup(context.Background())
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app.engine.Start()

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupHistory opens and migrates the archive database, then archives every
// lifecycle event through an asynchronous event bus so slow writes never
// hold up job listeners.
func (app *application) setupHistory() error {
	cfg := app.config.History
	ctx := context.Background()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	app.db = db
	app.logger.Info("History database connected", "driver", cfg.Driver)

	if err := database.Migrate(ctx, db, app.logger); err != nil {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}

	eventStore := database.NewEventStore(db)

	app.historyService, err = service.NewHistoryService(eventStore, service.HistoryConfig{
		Retention:     time.Duration(cfg.RetentionHours) * time.Hour,
		PruneSchedule: cfg.PruneSchedule,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create history service: %w", err)
	}

	app.eventBus, err = events.NewBus(events.DefaultBusConfig(), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	app.eventBus.Subscribe("history_archiver", eventStore)

	app.busDone = make(chan struct{})
	go func() {
		defer close(app.busDone)
		if err := app.eventBus.Run(context.Background()); err != nil {
			app.logger.Error("Event bus stopped", "error", err)
		}
	}()

	select {
	case <-app.eventBus.Running():
	case <-app.busDone:
		return fmt.Errorf("event bus failed to start")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("event bus did not start in time")
	}

	app.eventEmitter.Register(app.eventBus)
	app.historyService.Start()

	app.logger.Info("Job history enabled",
		"retention_hours", cfg.RetentionHours,
		"prune_schedule", cfg.PruneSchedule)
	return nil
}

// Run starts the scheduler and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (app *application) Run(ctx context.Context) error {
	app.jobService.Start()

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Jobs are
// cancelled before the engine stops so their listeners still run.
func (app *application) cleanup(ctx context.Context) {
	if app.jobService != nil {
		app.jobService.Stop(ctx)
	}
	if app.engine != nil {
		app.engine.Stop()
	}
	if app.eventStream != nil {
		app.eventStream.Close()
	}
	if app.historyService != nil {
		app.historyService.Stop()
	}
	// The bus drains in-flight archive writes before the database closes
	if app.eventBus != nil {
		if err := app.eventBus.Close(); err != nil {
			app.logger.Error("Failed to close event bus", "error", err)
		}
		<-app.busDone
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close history database", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
