package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/jobs"
)

// JobState is the lifecycle state of a job as seen through its events
type JobState string

// Job states
const (
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobStatus is the latest known state of the job registered under Tag
type JobStatus struct {
	Tag         string        `json:"tag"`
	State       JobState      `json:"state"`
	Mode        string        `json:"mode,omitempty"`
	URLs        []string      `json:"urls,omitempty"`
	Schedule    string        `json:"schedule,omitempty"`
	Timeout     int           `json:"timeout_seconds,omitempty"`
	Runs        int           `json:"runs"`
	Digests     []jobs.Digest `json:"digests,omitempty"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// Finished reports whether the latest run has completed
func (s JobStatus) Finished() bool {
	return s.FinishedAt != nil
}

// Event details carried by the job lifecycle events
type (
	submittedDetail struct {
		Mode     string   `json:"mode"`
		URLs     []string `json:"urls"`
		Schedule string   `json:"schedule,omitempty"`

		TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	}
	succeededDetail struct {
		Digests []jobs.Digest `json:"digests"`
	}
	failedDetail struct {
		Error string `json:"error"`
	}
)

// StatusRecorder is an events.EventHandler that folds job lifecycle events
// into the latest JobStatus per tag. It keeps at most limit entries and
// evicts the oldest finished one when full.
type StatusRecorder struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus
	limit    int
}

// NewStatusRecorder creates a recorder keeping at most limit statuses.
// A non-positive limit keeps 1024.
func NewStatusRecorder(limit int) *StatusRecorder {
	if limit <= 0 {
		limit = 1024
	}
	return &StatusRecorder{
		statuses: make(map[string]*JobStatus),
		limit:    limit,
	}
}

// HandleEvent implements events.EventHandler
func (r *StatusRecorder) HandleEvent(_ context.Context, event *events.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[event.Tag]
	if !ok {
		r.evictLocked()
		status = &JobStatus{Tag: event.Tag}
		r.statuses[event.Tag] = status
	}

	switch event.Type {
	case events.JobScheduled:
		var d submittedDetail
		if err := event.UnmarshalDetail(&d); err != nil {
			return fmt.Errorf("failed to decode %s detail: %w", event.Type, err)
		}
		status.State = StateScheduled
		status.Mode = d.Mode
		status.URLs = d.URLs
		status.Schedule = d.Schedule
		status.Timeout = d.TimeoutSeconds

	case events.JobSubmitted:
		var d submittedDetail
		if err := event.UnmarshalDetail(&d); err != nil {
			return fmt.Errorf("failed to decode %s detail: %w", event.Type, err)
		}
		status.State = StateRunning
		status.Mode = d.Mode
		status.URLs = d.URLs
		status.Schedule = d.Schedule
		status.Timeout = d.TimeoutSeconds
		status.Digests = nil
		status.Error = ""
		status.SubmittedAt = event.CreatedAt
		status.FinishedAt = nil

	case events.JobSucceeded:
		var d succeededDetail
		if err := event.UnmarshalDetail(&d); err != nil {
			return fmt.Errorf("failed to decode %s detail: %w", event.Type, err)
		}
		status.State = StateSucceeded
		status.Digests = d.Digests

	case events.JobFailed:
		var d failedDetail
		if err := event.UnmarshalDetail(&d); err != nil {
			return fmt.Errorf("failed to decode %s detail: %w", event.Type, err)
		}
		status.State = StateFailed
		status.Error = d.Error

	case events.JobCancelled:
		status.State = StateCancelled

	case events.JobFinished:
		// A schedule cancelled between ticks finishes without a live run
		if status.FinishedAt == nil && !status.SubmittedAt.IsZero() {
			status.Runs++
		}
		finished := event.CreatedAt
		status.FinishedAt = &finished
	}
	return nil
}

// Get returns a copy of the status recorded under tag
func (r *StatusRecorder) Get(tag string) (JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[tag]
	if !ok {
		return JobStatus{}, false
	}
	return *s, true
}

// List returns every recorded status ordered by tag
func (r *StatusRecorder) List() []JobStatus {
	r.mu.RLock()
	out := make([]JobStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// evictLocked drops the oldest finished status when the recorder is full.
// Statuses of live jobs are never evicted.
func (r *StatusRecorder) evictLocked() {
	if len(r.statuses) < r.limit {
		return
	}
	var (
		oldestTag string
		oldest    time.Time
	)
	for tag, s := range r.statuses {
		if s.FinishedAt == nil {
			continue
		}
		if oldestTag == "" || s.FinishedAt.Before(oldest) {
			oldestTag, oldest = tag, *s.FinishedAt
		}
	}
	if oldestTag != "" {
		delete(r.statuses, oldestTag)
	}
}
