package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/tree", s.handleTree)
		r.Post("/tree/connect", s.handleTreeConnect)

		r.Route("/devices/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Post("/connect", s.handleDeviceConnect)
		})

		r.Get("/history", s.handleHistory)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		mqttStatus := "ok"
		if err := s.mqtt.HealthCheck(r.Context()); err != nil {
			mqttStatus = err.Error()
		}
		resp["mqtt"] = mqttStatus
	}
	writeJSON(w, http.StatusOK, resp)
}
