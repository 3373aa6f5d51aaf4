package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thornfield/gatehouse/internal/access"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login and password reset consumption carry their own credentials
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/password-reset", s.handleConsumePasswordReset)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout-all", s.handleLogoutAll)
			r.Post("/auth/password", s.handleChangePassword)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireSection(access.SectionUsers))

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Post("/reset-token", s.handleCreateResetToken)
				})
			})

			// Section access policy
			r.Route("/access", func(r chi.Router) {
				r.Use(s.requireSection(access.SectionSecurity))

				r.Get("/users/{id}/overrides", s.handleListOverrides)
				r.Put("/users/{id}/overrides/{section}", s.handleSetOverride)
				r.Delete("/users/{id}/overrides/{section}", s.handleClearOverride)

				r.Get("/defaults", s.handleListDefaults)
				r.Put("/defaults/{role}/{section}", s.handleSetDefault)
			})

			// Audit trail
			r.Group(func(r chi.Router) {
				r.Use(s.requireSection(access.SectionAudit))
				r.Get("/audit", s.handleListAudit)
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
