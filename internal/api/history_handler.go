package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskline/internal/api/shared"
	"github.com/phrazzld/taskline/internal/events"
	"github.com/phrazzld/taskline/internal/service"
)

// JobEventsResponse is returned by GET /api/jobs/{tag}/events
type JobEventsResponse struct {
	Tag    string             `json:"tag"`
	Events []*events.JobEvent `json:"events"`
	Count  int                `json:"count"`
}

// HistoryHandler serves the archive of job lifecycle events
type HistoryHandler struct {
	history service.HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(history service.HistoryService, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{
		history: history,
		logger:  logger.With("component", "history_handler"),
	}
}

// GetJobEvents handles GET /api/jobs/{tag}/events?limit=N
func (h *HistoryHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			HandleAPIError(w, r, fmt.Errorf("%w: limit must be a number", service.ErrInvalidJobRequest))
			return
		}
		limit = n
	}

	list, err := h.history.Events(r.Context(), tag, limit)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobEventsResponse{
		Tag:    tag,
		Events: list,
		Count:  len(list),
	})
}
