package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// System metrics
		r.Get("/metrics", s.handleMetrics)

		// Journal maintenance
		r.Post("/system/prune", s.handlePruneJournal)

		// Switch group endpoints
		r.Route("/pbsg", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Put("/config", s.handleConfigureGroup)
				r.Delete("/", s.handleRemoveGroup)
				r.Post("/activate", s.handleActivate)
				r.Post("/deactivate", s.handleDeactivate)
				r.Post("/push", s.handlePush)
				r.Get("/events", s.handleListEvents)
			})
		})

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
