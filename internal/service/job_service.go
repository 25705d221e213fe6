package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/jobs"
	"github.com/phrazzld/taskline/internal/redact"
	"github.com/phrazzld/taskline/internal/task"
)

// Composition modes of a digest job
const (
	// ModeSerial digests URLs one after another and fails on the first error
	ModeSerial = "serial"
	// ModeParallel digests every URL concurrently; a failed URL is reported
	// in its own digest and does not fail the job
	ModeParallel = "parallel"
	// ModeSharded splits the URLs into contiguous shards processed
	// concurrently, and fails on the first error
	ModeSharded = "sharded"
)

// JobRequest describes a digest job to submit
type JobRequest struct {
	// Tag identifies the job; one is generated when empty
	Tag string `json:"tag,omitempty" yaml:"tag" validate:"omitempty,max=128,printascii,excludesall=/?#%"`

	URLs []string `json:"urls" yaml:"urls" validate:"required,min=1,dive,required,url"`

	// Mode defaults to ModeParallel
	Mode string `json:"mode,omitempty" yaml:"mode" validate:"omitempty,oneof=serial parallel sharded"`

	// Shards only applies to ModeSharded
	Shards int `json:"shards,omitempty" yaml:"shards" validate:"omitempty,min=1,max=64"`

	// Schedule turns the job into a recurring one fired by a cron
	// expression instead of running it once
	Schedule string `json:"schedule,omitempty" yaml:"schedule" validate:"omitempty,max=128"`

	// TimeoutSeconds cancels a run that is still live after this long;
	// zero means no timeout
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds" validate:"omitempty,min=1,max=86400"`
}

// JobServiceConfig holds the limits applied to submitted jobs
type JobServiceConfig struct {
	// MaxURLs caps the number of URLs per job
	MaxURLs int
	// DefaultShards is used by sharded jobs that do not set Shards
	DefaultShards int
}

// StatusSource exposes recorded job statuses
type StatusSource interface {
	Get(tag string) (JobStatus, bool)
	List() []JobStatus
}

// JobService submits digest jobs to the task engine and manages them by tag
type JobService interface {
	// Submit validates req and starts or schedules the job it describes
	Submit(ctx context.Context, req JobRequest) (*JobStatus, error)

	// Cancel cancels the running job and the schedule registered under tag
	Cancel(ctx context.Context, tag string) error

	// CancelAll cancels every running and scheduled job and returns how
	// many tags were affected
	CancelAll(ctx context.Context) int

	// Status returns the latest status of the job registered under tag
	Status(ctx context.Context, tag string) (*JobStatus, error)

	// List returns the statuses of all known jobs
	List(ctx context.Context) []JobStatus

	// Start begins firing scheduled jobs
	Start()

	// Stop stops the scheduler and cancels every running job
	Stop(ctx context.Context)
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	engine    *task.Engine
	queue     *task.TaskQueue
	fetcher   *jobs.Fetcher
	emitter   events.EventEmitter
	statuses  StatusSource
	scheduler *Scheduler
	validate  *validator.Validate
	config    JobServiceConfig
	logger    *slog.Logger

	// registerMu makes the tag conflict check and the registration of the
	// job under that tag one step
	registerMu sync.Mutex
}

// NewJobService creates a new JobService
// It returns an error if any of the required dependencies are nil.
func NewJobService(
	engine *task.Engine,
	queue *task.TaskQueue,
	fetcher *jobs.Fetcher,
	emitter events.EventEmitter,
	statuses StatusSource,
	config JobServiceConfig,
	logger *slog.Logger,
) (JobService, error) {
	deps := []struct {
		name  string
		isNil bool
	}{
		{"engine", engine == nil},
		{"queue", queue == nil},
		{"fetcher", fetcher == nil},
		{"emitter", emitter == nil},
		{"statuses", statuses == nil},
	}
	for _, d := range deps {
		if d.isNil {
			return nil, &JobServiceError{
				Operation: "create_service",
				Message:   d.name + " cannot be nil",
			}
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxURLs <= 0 {
		config.MaxURLs = 64
	}
	if config.DefaultShards <= 0 {
		config.DefaultShards = 4
	}

	return &jobServiceImpl{
		engine:    engine,
		queue:     queue,
		fetcher:   fetcher,
		emitter:   emitter,
		statuses:  statuses,
		scheduler: NewScheduler(logger),
		validate:  validator.New(),
		config:    config,
		logger:    logger.With("component", "job_service"),
	}, nil
}

// Submit validates req, then either schedules it or enqueues and executes it
// right away. The returned status reflects the state right after submission.
func (s *jobServiceImpl) Submit(ctx context.Context, req JobRequest) (*JobStatus, error) {
	req = s.normalize(req)
	if err := s.validateRequest(req); err != nil {
		s.logger.Warn("job request rejected", "tag", req.Tag, "error", err)
		return nil, err
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if s.queue.Exist(req.Tag) || s.scheduler.Has(req.Tag) {
		return nil, ErrJobConflict
	}

	template := s.compose(req)
	detail := submittedDetail{
		Mode:           req.Mode,
		URLs:           redactURLs(req.URLs),
		Schedule:       req.Schedule,
		TimeoutSeconds: req.TimeoutSeconds,
	}
	status := &JobStatus{
		Tag:      req.Tag,
		Mode:     req.Mode,
		URLs:     detail.URLs,
		Schedule: req.Schedule,
	}

	if req.Schedule != "" {
		tag := req.Tag
		err := s.scheduler.Add(tag, req.Schedule, func() {
			s.trigger(tag, template, detail)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobRequest, err)
		}
		s.emit(ctx, events.JobScheduled, tag, detail)
		status.State = StateScheduled
		return status, nil
	}

	if err := s.launch(ctx, req.Tag, template, detail); err != nil {
		return nil, NewJobServiceError("submit_job", "failed to start job", err)
	}
	status.State = StateRunning
	status.SubmittedAt = time.Now().UTC()
	return status, nil
}

// Cancel cancels the running job and removes the schedule registered under tag
func (s *jobServiceImpl) Cancel(ctx context.Context, tag string) error {
	unscheduled := s.scheduler.Remove(tag)
	cancelled := s.queue.Cancel(tag)
	if !unscheduled && !cancelled {
		return ErrJobNotFound
	}

	// A running job reports its own cancellation once it unwinds
	if !cancelled {
		s.emit(ctx, events.JobCancelled, tag, nil)
		s.emit(ctx, events.JobFinished, tag, nil)
	}

	s.logger.Info("job cancelled",
		"tag", tag,
		"was_running", cancelled,
		"was_scheduled", unscheduled)
	return nil
}

// CancelAll cancels every running and scheduled job
func (s *jobServiceImpl) CancelAll(ctx context.Context) int {
	running := make(map[string]bool)
	for _, tag := range s.queue.Tags() {
		running[tag] = true
	}

	affected := s.queue.CancelAll()
	for _, tag := range s.scheduler.RemoveAll() {
		if running[tag] {
			continue
		}
		affected++
		s.emit(ctx, events.JobCancelled, tag, nil)
		s.emit(ctx, events.JobFinished, tag, nil)
	}

	s.logger.Info("all jobs cancelled", "count", affected)
	return affected
}

// Status returns the recorded status of tag. A job that is live but has no
// recorded events yet is reported as running.
func (s *jobServiceImpl) Status(_ context.Context, tag string) (*JobStatus, error) {
	if status, ok := s.statuses.Get(tag); ok {
		return &status, nil
	}
	if s.queue.Exist(tag) {
		return &JobStatus{Tag: tag, State: StateRunning}, nil
	}
	return nil, ErrJobNotFound
}

// List returns the recorded statuses of all jobs
func (s *jobServiceImpl) List(_ context.Context) []JobStatus {
	return s.statuses.List()
}

// Start begins firing scheduled jobs
func (s *jobServiceImpl) Start() {
	s.scheduler.Start()
}

// Stop halts the scheduler and cancels every running job
func (s *jobServiceImpl) Stop(ctx context.Context) {
	s.scheduler.Stop()
	n := s.CancelAll(ctx)
	s.logger.Info("job service stopped", "cancelled", n)
}

func (s *jobServiceImpl) normalize(req JobRequest) JobRequest {
	req.Tag = strings.TrimSpace(req.Tag)
	if req.Tag == "" {
		req.Tag = "job-" + uuid.NewString()
	}
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	if req.Mode == "" {
		req.Mode = ModeParallel
	}
	if req.Mode == ModeSharded && req.Shards == 0 {
		req.Shards = s.config.DefaultShards
	}
	req.Schedule = strings.TrimSpace(req.Schedule)

	urls := make([]string, len(req.URLs))
	for i, u := range req.URLs {
		urls[i] = strings.TrimSpace(u)
	}
	req.URLs = urls
	return req
}

func (s *jobServiceImpl) validateRequest(req JobRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJobRequest, redact.Error(err))
	}
	if len(req.URLs) > s.config.MaxURLs {
		return fmt.Errorf("%w: %d urls exceeds the limit of %d",
			ErrInvalidJobRequest, len(req.URLs), s.config.MaxURLs)
	}
	for _, u := range req.URLs {
		if err := jobs.ValidateURL(u); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidJobRequest, redact.Error(err))
		}
	}
	if req.Schedule != "" {
		if err := ValidateSchedule(req.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJobRequest, err)
		}
	}
	return nil
}

// compose builds the task computing the digests of req.URLs in req.Mode
func (s *jobServiceImpl) compose(req JobRequest) *task.Task[[]jobs.Digest] {
	switch req.Mode {
	case ModeSerial:
		digests := make([]*task.Task[jobs.Digest], len(req.URLs))
		for i, u := range req.URLs {
			digests[i] = jobs.DigestTask(s.engine, s.fetcher, u)
		}
		return task.SerialTyped(s.engine, digests)

	case ModeSharded:
		parts := make([]*task.Task[[]jobs.Digest], len(req.URLs))
		for i, u := range req.URLs {
			parts[i] = task.Map(jobs.DigestTask(s.engine, s.fetcher, u), single)
		}
		return task.ParallelTypedCollectionN(s.engine, parts, req.Shards)

	default:
		urls := append([]string(nil), req.URLs...)
		digests := make([]task.Runnable, len(urls))
		for i, u := range urls {
			digests[i] = jobs.DigestTask(s.engine, s.fetcher, u)
		}
		return task.ParallelThen(s.engine, func(slots []any) ([]jobs.Digest, error) {
			out := make([]jobs.Digest, len(slots))
			for i, slot := range slots {
				switch v := slot.(type) {
				case jobs.Digest:
					out[i] = v
				case error:
					out[i] = jobs.Failed(urls[i], v)
				default:
					out[i] = jobs.Failed(urls[i], fmt.Errorf("unexpected result %T", slot))
				}
			}
			return out, nil
		}, digests...)
	}
}

// trigger starts one run of a scheduled job. A tick is skipped while the
// previous run is still live.
func (s *jobServiceImpl) trigger(tag string, template *task.Task[[]jobs.Digest], detail submittedDetail) {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if s.queue.Exist(tag) {
		s.logger.Warn("previous run still in progress, skipping tick", "tag", tag)
		return
	}
	if err := s.launch(context.Background(), tag, template.Clone(), detail); err != nil {
		s.logger.Error("failed to start scheduled run", "tag", tag, "error", err)
	}
}

// launch enqueues t under tag, wires the lifecycle events and executes it.
// A job with a timeout is raced against a timer task: whichever finishes
// first cancels the other.
func (s *jobServiceImpl) launch(
	ctx context.Context,
	tag string,
	t *task.Task[[]jobs.Digest],
	detail submittedDetail,
) error {
	var (
		delivered atomic.Bool
		d         *task.DelayedTask[[]jobs.Digest]
		timer     *task.DelayedTask[time.Duration]
	)

	if detail.TimeoutSeconds > 0 {
		timeout := time.Duration(detail.TimeoutSeconds) * time.Second
		timer = jobs.SleepTask(s.engine, timeout).Delayed().
			OnResult(func(time.Duration) {
				// Only this run is cancelled, never a later one under the same tag
				n := s.queue.CancelMatching(func(h task.Handle, _ string) bool { return h == d })
				if n > 0 {
					s.logger.Warn("job timed out", "tag", tag, "timeout", timeout)
				}
			})
	}

	d = task.Enqueue(s.queue, tag, t).
		OnResult(func(digests []jobs.Digest) {
			delivered.Store(true)
			s.emit(context.Background(), events.JobSucceeded, tag, succeededDetail{Digests: digests})
		}).
		OnError(func(err error) {
			delivered.Store(true)
			s.logger.Warn("job failed", "tag", tag, "error", redact.Error(err))
			s.emit(context.Background(), events.JobFailed, tag, failedDetail{Error: redact.Error(err)})
		}).
		AtLast(func() {
			timer.Cancel()
			if !delivered.Load() {
				s.emit(context.Background(), events.JobCancelled, tag, nil)
			}
			s.emit(context.Background(), events.JobFinished, tag, nil)
		})

	s.emit(ctx, events.JobSubmitted, tag, detail)

	if err := d.Execute(); err != nil {
		// Listeners never run for a rejected task, so close out its lifecycle here
		s.queue.Cancel(tag)
		s.emit(ctx, events.JobFailed, tag, failedDetail{Error: err.Error()})
		s.emit(ctx, events.JobFinished, tag, nil)
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	// A job that already finished has cancelled the timer, which then
	// skips its callable
	if timer != nil {
		if err := timer.Execute(); err != nil {
			s.logger.Warn("job timeout not armed", "tag", tag, "error", err)
		}
	}

	s.logger.Info("job started",
		"tag", tag,
		"task_id", d.ID(),
		"mode", detail.Mode,
		"url_count", len(detail.URLs),
		"timeout_seconds", detail.TimeoutSeconds)
	return nil
}

// emit publishes a lifecycle event. Emission failures are logged and do not
// affect the job.
func (s *jobServiceImpl) emit(ctx context.Context, eventType, tag string, detail interface{}) {
	event, err := events.NewJobEvent(eventType, tag, detail)
	if err != nil {
		s.logger.Error("failed to create job event",
			"error", err,
			"event_type", eventType,
			"tag", tag)
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit job event",
			"error", err,
			"event_id", event.ID,
			"event_type", eventType,
			"tag", tag)
	}
}

func single(d jobs.Digest) ([]jobs.Digest, error) {
	return []jobs.Digest{d}, nil
}

func redactURLs(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = redact.URL(u)
	}
	return out
}
