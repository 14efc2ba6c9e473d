package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds component checks in /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// Component status values reported by /api/v1/health.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDisabled = "disabled"
	statusDown     = "down"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/sessions", s.handleSessions)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleAudit)
	})

	r.Handle("/metrics", s.metrics.Handler())

	// Registered last so a "/" path does not shadow the API.
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	return r
}

// handleHealth reports overall and per-component status. Optional
// components that are down degrade the status but never fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{
		"mqtt":     statusDisabled,
		"database": statusDisabled,
	}
	overall := statusOK

	if s.mqtt != nil {
		components["mqtt"] = statusOK
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			components["mqtt"] = statusDown
			overall = statusDegraded
		}
	}
	if s.db != nil {
		components["database"] = statusOK
		if err := s.db.HealthCheck(ctx); err != nil {
			components["database"] = statusDown
			overall = statusDegraded
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
