package api

import (
	"net/http"

	"github.com/steuerkern/api/internal/services/elster"
)

// CreateSubmission handles POST /api/v1/submissions
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req elster.BuildRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := h.elster.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ValidateSubmission handles POST /api/v1/submissions/validate. It builds
// the declaration and returns it with warnings, persisting nothing.
func (h *Handler) ValidateSubmission(w http.ResponseWriter, r *http.Request) {
	var req elster.BuildRequest
	if !decodeBody(w, r, &req) {
		return
	}
	prev, err := h.elster.Validate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if prev.Warnings == nil {
		prev.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, prev)
}

// ListSubmissions handles GET /api/v1/submissions
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.elster.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if subs == nil {
		subs = []elster.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetSubmission handles GET /api/v1/submissions/{id}
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.elster.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateSubmissionStatus handles PUT /api/v1/submissions/{id}/status
func (h *Handler) UpdateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var upd elster.StatusUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	sub, err := h.elster.UpdateStatus(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
