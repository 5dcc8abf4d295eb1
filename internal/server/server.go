// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/propmaint/internal/handler"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Auth       *handler.Authenticator
	Tasks      *handler.TaskHandler
	Properties *handler.PropertyHandler
	Batches    *handler.BatchHandler
	Activity   *handler.ActivityHandler
	// Feed serves the websocket event stream; nil disables the route.
	Feed http.Handler
	// RequestTimeout bounds every non-streaming request's context.
	RequestTimeout time.Duration
}

// NewRouter registers every route.
func NewRouter(h Handlers, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(handler.Logging(log))
	r.Use(handler.Recovery(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	timeout := h.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		if h.Feed != nil {
			r.With(handler.RequireAdmin).Get("/feed", h.Feed.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			routes(r, h)
		})
	})
	return r
}

func routes(r chi.Router, h Handlers) {
	// --- Tasks ---
	r.Post("/tasks", h.Tasks.CreateTask)
	r.Get("/tasks", h.Tasks.ListTasks)
	r.Get("/tasks/export", h.Tasks.ExportTasks)
	r.Post("/tasks/import", h.Tasks.ImportTasks)
	r.Get("/tasks/{id}", h.Tasks.GetTask)
	r.Patch("/tasks/{id}", h.Tasks.PatchTask)
	r.Post("/tasks/{id}/promote", h.Tasks.PromoteTask)
	r.Get("/tasks/{id}/activity", h.Tasks.TaskActivity)
	r.Post("/tasks/{id}/feedback", h.Tasks.SubmitFeedback)
	r.Get("/tasks/{id}/feedback", h.Tasks.GetFeedback)

	// --- Properties ---
	r.Post("/properties", h.Properties.CreateProperty)
	r.Get("/properties", h.Properties.ListProperties)
	r.Get("/properties/{id}", h.Properties.GetProperty)
	r.Patch("/properties/{id}", h.Properties.UpdateProperty)
	r.Get("/properties/{id}/activity", h.Properties.PropertyActivity)

	// --- Batches ---
	r.Get("/predictions/preview", h.Batches.PreviewPredictions)
	r.Post("/predictions", h.Batches.GeneratePredictions)
	r.Post("/priorities/apply", h.Batches.ApplyPriorities)
	r.Post("/assignments", h.Batches.AssignWeekly)
	r.Get("/assignments", h.Batches.ListAssignments)
	r.Get("/metrics", h.Batches.Metrics)
	r.Get("/jobs", h.Batches.ListJobs)
	r.Post("/jobs/{name}/run", h.Batches.RunJob)

	// --- Activity ---
	r.Post("/activity/search", h.Activity.HandleSearchActivity)
}

// Config holds server configuration.
type Config struct {
	Port    int
	Handler http.Handler
	Log     *slog.Logger
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           cfg.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}
