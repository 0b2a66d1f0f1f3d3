package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/golem-api/internal/api"
	apiMiddleware "github.com/phrazzld/golem-api/internal/api/middleware"
)

// healthPingTimeout bounds the database ping in the health check so a
// hung database cannot hang the probe.
const healthPingTimeout = 2 * time.Second

// setupRouter creates and configures the application router with all routes and middleware.
// It accepts the application dependencies to create handlers and register routes.
// Returns the configured router.
func (app *application) setupRouter() http.Handler {
	// Create a router
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace)

	// Create API handlers using the application's services
	jobHandler := api.NewJobHandler(app.jobService, app.logger)

	// Register routes. The static /types and /stats routes must be
	// declared inside the same block as /{id}; chi resolves static
	// segments before wildcards.
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", jobHandler.SubmitJob)
		r.Get("/", jobHandler.ListJobs)
		r.Get("/types", jobHandler.ListJobTypes)
		r.Get("/stats", jobHandler.GetQueueStats)
		r.Get("/{id}", jobHandler.GetJob)
		r.Get("/{id}/status", jobHandler.GetJobStatus)
		r.Post("/{id}/cancel", jobHandler.CancelJob)
	})

	// Health check endpoint. Reports unhealthy when the database is
	// unreachable, since every endpoint depends on it.
	r.Get("/health", app.handleHealth)

	return r
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	if err := app.db.PingContext(ctx); err != nil {
		app.logger.Warn("Health check database ping failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unreachable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		app.logger.Error("Failed to write health check response", "error", err)
	}
}
