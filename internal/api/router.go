package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is mounted under /api/v1 when the config leaves the path empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket authenticates in the handler: browsers cannot set
		// headers on the upgrade request, so a ticket is accepted too.
		r.Get(wsPath, s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/accessories", func(r chi.Router) {
				r.Get("/", s.handleListAccessories)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetAccessory)
					r.Get("/on", s.handleGetOn)
					r.Put("/on", s.handleSetOn)
					r.Get("/outlet-in-use", s.handleGetOutletInUse)
					r.Get("/status-active", s.handleGetStatusActive)
				})
			})
		})
	})

	return r
}

// accessoryHealth is one entry of the health response.
type accessoryHealth struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// telemetryHealthTimeout bounds the telemetry ping made by /health.
const telemetryHealthTimeout = 2 * time.Second

// handleHealth returns the server health status.
// Status is "degraded" while any accessory's broker session is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	accessories := make([]accessoryHealth, 0, len(list))
	status := "ok"
	for _, a := range list {
		connected := a.IsConnected()
		if !connected {
			status = "degraded"
		}
		accessories = append(accessories, accessoryHealth{Name: a.Name(), Connected: connected})
	}

	resp := map[string]any{
		"status":      status,
		"version":     s.version,
		"accessories": accessories,
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(r.Context(), telemetryHealthTimeout)
		defer cancel()
		if err := s.telemetry.HealthCheck(ctx); err != nil {
			resp["telemetry"] = "unreachable"
		} else {
			resp["telemetry"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
