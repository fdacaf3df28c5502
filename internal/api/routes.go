package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Live sessions
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.HandleListSessions)
		r.Route("/{port_id}", func(r chi.Router) {
			r.Get("/", s.HandleGetSession)
			r.Get("/commands", s.HandleListCommands)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Delete("/", s.HandleCloseSession)
				r.Put("/mode", s.HandleSetMode)
				r.Post("/commands", s.HandleQueueCommand)
				r.Delete("/commands", s.HandleClearCommands)
			})
		})
	})

	// Devices
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.HandleListDevices)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetDevice)
			r.Get("/telemetry", s.HandleListTelemetry)
		})
	})

	// Events
	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.HandleListEvents)
	})
}
