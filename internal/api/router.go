// Package api serves the dashboard endpoints: concept listing, manual posting, recent errors,
// health and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the handler's routes. An empty apiKey leaves /api open.
func NewRouter(h *Handler, metricsHandler http.Handler, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Observe(h.log, h.obs))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute)) // a manual post covers every platform upload

	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if apiKey != "" {
			r.Use(APIKeyAuth(apiKey))
		}
		r.Get("/concepts", h.ListConcepts)
		r.Get("/concepts/{conceptID}/videos", h.ListVideos)
		r.Post("/post", h.Post)
		r.Get("/errors", h.Errors)
	})

	return r
}
