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
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket stream of discovery events. Browsers cannot set an
		// Authorization header on the upgrade request, so the handler
		// validates a token query parameter itself.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// SSDP inventory
			r.Route("/discovery", func(r chi.Router) {
				r.Get("/", s.handleListDiscovery)
				r.Post("/scan", s.handleScan)
				r.Get("/st/{st}", s.handleDiscoveryByST)
				r.Get("/udn/{udn}", s.handleDiscoveryByUDN)
				r.Get("/udn/{udn}/st/{st}", s.handleDiscoveryByUDNST)
			})

			// Discovery flows
			r.Route("/flows", func(r chi.Router) {
				r.Get("/", s.handleListFlows)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetFlow)
					r.Delete("/", s.handleDeleteFlow)
				})
			})

			// DLNA media-server sources
			r.Route("/sources", func(r chi.Router) {
				r.Get("/", s.handleListSources)
				r.Route("/{source_id}", func(r chi.Router) {
					r.Get("/", s.handleGetSource)
					r.Patch("/", s.handleRenameSource)
					r.Get("/browse", s.handleBrowseSource)
					r.Get("/resolve", s.handleResolveSource)
				})
			})
		})
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
