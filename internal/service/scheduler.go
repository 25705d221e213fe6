package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard five-field expressions, an optional
// leading seconds field and descriptors such as "@every 30s".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether spec is a cron expression the scheduler accepts
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs a trigger function per tag on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(scheduleParser)),
		entries: make(map[string]cron.EntryID),
		logger:  logger.With("component", "scheduler"),
	}
}

// Add registers trigger under tag, replacing any schedule already
// registered for it.
func (s *Scheduler) Add(tag, spec string, trigger func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, trigger)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if old, ok := s.entries[tag]; ok {
		s.cron.Remove(old)
	}
	s.entries[tag] = id

	s.logger.Info("job scheduled", "tag", tag, "schedule", spec)
	return nil
}

// Has reports whether a schedule is registered under tag
func (s *Scheduler) Has(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[tag]
	return ok
}

// Remove unregisters the schedule of tag and reports whether it existed.
// A run already triggered is not affected.
func (s *Scheduler) Remove(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[tag]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, tag)

	s.logger.Info("job unscheduled", "tag", tag)
	return true
}

// RemoveAll unregisters every schedule and returns their tags
func (s *Scheduler) RemoveAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := make([]string, 0, len(s.entries))
	for tag, id := range s.entries {
		s.cron.Remove(id)
		tags = append(tags, tag)
	}
	s.entries = make(map[string]cron.EntryID)

	sort.Strings(tags)
	return tags
}

// Tags returns the sorted tags that have a schedule
func (s *Scheduler) Tags() []string {
	s.mu.Lock()
	tags := make([]string, 0, len(s.entries))
	for tag := range s.entries {
		tags = append(tags, tag)
	}
	s.mu.Unlock()

	sort.Strings(tags)
	return tags
}

// Start begins firing schedules in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the scheduler and waits for triggers already running
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
