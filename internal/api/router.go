package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter wires middleware and routes. Everything under /api/v1
// except /health sits behind authMiddleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		s.bodySizeLimitMiddleware,
	)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", s.handleHealth)

		v1.Group(func(p chi.Router) {
			p.Use(s.authMiddleware)
			p.Mount("/devices", s.deviceRoutes())
			p.Get("/ws", s.handleWebSocket)
		})
	})
	return r
}

func (s *Server) deviceRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleListDevices)
	r.Get("/{id}", s.handleGetDevice)
	r.Get("/{id}/state", s.handleGetDeviceState)
	r.Get("/{id}/history", s.handleGetDeviceHistory)
	r.Post("/{id}/commands", s.handleCommand)
	return r
}

// handleHealth reports liveness plus a few counters for dashboards.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": len(s.library.IDs()),
	}
	if s.hub != nil {
		body["stream_clients"] = s.hub.Sessions()
	}
	writeJSON(w, http.StatusOK, body)
}
