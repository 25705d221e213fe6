package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/taskline/internal/api"
	apiMiddleware "github.com/phrazzld/taskline/internal/api/middleware"
	"github.com/phrazzld/taskline/internal/service/auth"
)

// setupRouter creates the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	jobHandler := api.NewJobHandler(app.jobService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.tokenService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RequireScope(auth.ScopeJobsRead))
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/{tag}", jobHandler.GetJob)
			r.Handle("/events", app.eventStream)
			if app.historyService != nil {
				historyHandler := api.NewHistoryHandler(app.historyService, app.logger)
				r.Get("/jobs/{tag}/events", historyHandler.GetJobEvents)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RequireScope(auth.ScopeJobsWrite))
			r.Post("/jobs", jobHandler.SubmitJob)
			r.Delete("/jobs", jobHandler.CancelAllJobs)
			r.Delete("/jobs/{tag}", jobHandler.CancelJob)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
