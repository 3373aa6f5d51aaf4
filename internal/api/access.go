package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thornfield/gatehouse/internal/access"
	"github.com/thornfield/gatehouse/internal/auth"
)

type setOverrideRequest struct {
	Enabled bool `json:"enabled"`
}

type setDefaultRequest struct {
	State access.DefaultState `json:"state"`
}

// handleListOverrides returns a user's stored section overrides.
func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load user for overrides failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to list overrides")
		return
	}

	overrides, err := s.access.Overrides(r.Context(), id)
	if err != nil {
		s.logger.Error("list overrides failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to list overrides")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// handleSetOverride creates or replaces a per-user section override.
func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	section := access.Section(chi.URLParam(r, "section"))
	claims := claimsFromContext(r.Context())

	if !access.IsValidSection(section) {
		writeBadRequest(w, "unknown section")
		return
	}

	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load user for override failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to set override")
		return
	}

	override := &access.Override{
		UserID:  id,
		Section: section,
		Enabled: req.Enabled,
	}
	if err := s.access.SetOverride(r.Context(), override, claims.Subject); err != nil {
		s.logger.Error("set override failed", "user_id", id, "section", section, "error", err)
		writeInternalError(w, "failed to set override")
		return
	}

	writeJSON(w, http.StatusOK, override)
}

// handleClearOverride removes a per-user override, returning the section
// to role-derived access.
func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	section := access.Section(chi.URLParam(r, "section"))
	claims := claimsFromContext(r.Context())

	if !access.IsValidSection(section) {
		writeBadRequest(w, "unknown section")
		return
	}

	if err := s.access.ClearOverride(r.Context(), id, section, claims.Subject); err != nil {
		s.logger.Error("clear override failed", "user_id", id, "section", section, "error", err)
		writeInternalError(w, "failed to clear override")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListDefaults returns every configured per-role section default.
func (s *Server) handleListDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := s.access.Defaults(r.Context())
	if err != nil {
		s.logger.Error("list defaults failed", "error", err)
		writeInternalError(w, "failed to list defaults")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": defaults,
		"count":    len(defaults),
	})
}

// handleSetDefault writes a per-role section default. A change that would
// lock every administrator out of the security section is rejected with 409.
func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	role := auth.Role(chi.URLParam(r, "role"))
	section := access.Section(chi.URLParam(r, "section"))
	claims := claimsFromContext(r.Context())

	if !access.IsValidSection(section) {
		writeBadRequest(w, "unknown section")
		return
	}
	if !auth.IsValidRole(role) {
		writeBadRequest(w, "unknown role")
		return
	}

	var req setDefaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !access.IsValidDefaultState(req.State) {
		writeBadRequest(w, "state must be enabled, disabled, or auto")
		return
	}

	def := &access.SectionDefault{
		Role:    role,
		Section: section,
		State:   req.State,
	}
	if err := s.access.SetDefault(r.Context(), def, claims.Subject); err != nil {
		if errors.Is(err, access.ErrLockoutPrevented) {
			writeConflict(w, "lockout_prevented", "change would lock out every administrator")
			return
		}
		s.logger.Error("set default failed", "role", role, "section", section, "error", err)
		writeInternalError(w, "failed to set default")
		return
	}

	writeJSON(w, http.StatusOK, def)
}
