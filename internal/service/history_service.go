package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/store"
)

// pruneTag names the scheduler entry that prunes the archive
const pruneTag = "history-prune"

// History listing limits
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// HistoryConfig controls retention of archived job events
type HistoryConfig struct {
	// Retention is how long events are kept; zero keeps them forever
	Retention time.Duration

	// PruneSchedule is the cron expression pruning runs on; empty disables
	// scheduled pruning
	PruneSchedule string
}

// HistoryService reads and prunes the archive of job lifecycle events
type HistoryService interface {
	// Events returns up to limit archived events of tag, oldest first. A
	// tag without archived events returns ErrJobNotFound.
	Events(ctx context.Context, tag string, limit int) ([]*events.JobEvent, error)

	// Prune deletes events older than the retention and returns how many
	// were removed
	Prune(ctx context.Context) (int64, error)

	// Start schedules pruning
	Start()

	// Stop halts scheduled pruning
	Stop()
}

type historyServiceImpl struct {
	events    store.EventStore
	config    HistoryConfig
	scheduler *Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// NewHistoryService creates a HistoryService over eventStore
func NewHistoryService(eventStore store.EventStore, config HistoryConfig, logger *slog.Logger) (HistoryService, error) {
	if eventStore == nil {
		return nil, &JobServiceError{Operation: "create_history_service", Message: "event store cannot be nil"}
	}
	if config.Retention < 0 {
		return nil, &JobServiceError{Operation: "create_history_service", Message: "retention cannot be negative"}
	}
	if config.PruneSchedule != "" {
		if err := ValidateSchedule(config.PruneSchedule); err != nil {
			return nil, NewJobServiceError("create_history_service", "invalid prune schedule", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &historyServiceImpl{
		events:    eventStore,
		config:    config,
		scheduler: NewScheduler(logger),
		now:       time.Now,
		logger:    logger.With("component", "history_service"),
	}, nil
}

// Events returns the archived events of tag
func (s *historyServiceImpl) Events(ctx context.Context, tag string, limit int) ([]*events.JobEvent, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is required", ErrInvalidJobRequest)
	}
	switch {
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit < 0 || limit > MaxHistoryLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidJobRequest, MaxHistoryLimit)
	}

	list, err := s.events.ListEvents(ctx, tag, limit)
	if err != nil {
		return nil, NewJobServiceError("list_events", "failed to read job history", err)
	}
	if len(list) == 0 {
		return nil, ErrJobNotFound
	}
	return list, nil
}

// Prune deletes events older than the retention
func (s *historyServiceImpl) Prune(ctx context.Context) (int64, error) {
	if s.config.Retention == 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.Retention)
	n, err := s.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune job history", "cutoff", cutoff, "error", err)
		return 0, NewJobServiceError("prune_events", "failed to prune job history", err)
	}

	s.logger.Info("job history pruned", "cutoff", cutoff, "deleted", n)
	return n, nil
}

// Start schedules pruning when both a retention and a schedule are set
func (s *historyServiceImpl) Start() {
	if s.config.Retention == 0 || s.config.PruneSchedule == "" {
		s.logger.Info("job history pruning disabled")
		return
	}

	// The schedule was validated by the constructor
	_ = s.scheduler.Add(pruneTag, s.config.PruneSchedule, func() {
		_, _ = s.Prune(context.Background())
	})
	s.scheduler.Start()
}

// Stop halts scheduled pruning
func (s *historyServiceImpl) Stop() {
	s.scheduler.Stop()
}
