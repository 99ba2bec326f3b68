package api

import (
	"net/http"

	"github.com/steuerkern/api/internal/audit"
)

// AuditHistory handles GET /api/v1/audit/{entityType}/{entityId}
func (h *Handler) AuditHistory(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")

	entries, err := h.audit.History(r.Context(), entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AuditSearch handles GET /api/v1/audit with filter query parameters.
func (h *Handler) AuditSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		EntityType: q.Get("entityType"),
		Action:     audit.Action(q.Get("action")),
		Actor:      q.Get("actor"),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}
	if limit, ok := queryInt(r, "limit"); ok {
		filter.Limit = limit
	}
	if offset, ok := queryInt(r, "offset"); ok {
		filter.Offset = offset
	}

	entries, err := h.audit.Search(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
