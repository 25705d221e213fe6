package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskline/internal/api/shared"
	"github.com/phrazzld/taskline/internal/platform/logger"
	"github.com/phrazzld/taskline/internal/service"
)

// JobListResponse is returned by GET /api/jobs
type JobListResponse struct {
	Jobs  []service.JobStatus `json:"jobs"`
	Count int                 `json:"count"`
}

// CancelAllResponse is returned by DELETE /api/jobs
type CancelAllResponse struct {
	Cancelled int `json:"cancelled"`
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobService service.JobService
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService service.JobService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobService: jobService,
		logger:     logger.With("component", "job_handler"),
	}
}

// SubmitJob handles POST /api/jobs. The body is a service.JobRequest in JSON
// or YAML. Jobs run asynchronously, so the response is 202 Accepted.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req service.JobRequest
	if err := shared.DecodeBody(w, r, &req); err != nil {
		status := MapErrorToStatusCode(err)
		message := GetSafeErrorMessage(err)
		if status == http.StatusInternalServerError {
			status, message = http.StatusBadRequest, "Invalid request format"
		}
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	status, err := h.jobService.Submit(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("job accepted",
		"tag", status.Tag,
		"mode", status.Mode,
		"state", status.State,
		"url_count", len(status.URLs))
	shared.RespondWithJSON(w, r, http.StatusAccepted, status)
}

// ListJobs handles GET /api/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobService.List(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, JobListResponse{
		Jobs:  jobs,
		Count: len(jobs),
	})
}

// GetJob handles GET /api/jobs/{tag}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobService.Status(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// CancelJob handles DELETE /api/jobs/{tag}
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if err := h.jobService.Cancel(r.Context(), tag); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("job cancel requested", "tag", tag)
	w.WriteHeader(http.StatusNoContent)
}

// CancelAllJobs handles DELETE /api/jobs
func (h *JobHandler) CancelAllJobs(w http.ResponseWriter, r *http.Request) {
	n := h.jobService.CancelAll(r.Context())

	logger.FromContextOrDefault(r.Context(), h.logger).Info("all jobs cancel requested", "count", n)
	shared.RespondWithJSON(w, r, http.StatusOK, CancelAllResponse{Cancelled: n})
}
