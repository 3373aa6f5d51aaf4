package api

import (
	"net/http"
	"strconv"
)

// maxAuditListLimit caps the audit page size.
const maxAuditListLimit = 500

// handleListAudit returns the most recent audit entries, newest first.
// The optional ?limit query parameter caps the page size.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxAuditListLimit)
	}

	entries, err := s.auditRepo.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
