package api

import (
	"errors"
	"net/http"

	"github.com/steuerkern/api/internal/locks"
)

// lockRequest is the caller-facing lock body.
type lockRequest struct {
	PeriodType string `json:"periodType"`
	PeriodKey  string `json:"periodKey"`
	Reason     string `json:"reason"`
}

// unlockRequest carries the mandatory unlock justification.
type unlockRequest struct {
	Reason string `json:"reason"`
}

// ListLocks handles GET /api/v1/locks
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	out, err := h.locks.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out == nil {
		out = []locks.PeriodLock{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Lock handles POST /api/v1/locks
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lock, err := h.locks.Lock(r.Context(), locks.PeriodType(req.PeriodType), req.PeriodKey, actor(r), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

// Unlock handles DELETE /api/v1/locks/{key}
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req unlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.locks.Unlock(r.Context(), key, actor(r), req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkResponse reports whether a date is currently writable.
type checkResponse struct {
	Date   string            `json:"date"`
	Locked bool              `json:"locked"`
	Lock   *locks.PeriodLock `json:"lock,omitempty"`
}

// CheckLock handles GET /api/v1/locks/check?date=
func (h *Handler) CheckLock(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "date query parameter is required"})
		return
	}

	err := h.locks.Check(r.Context(), date)
	if err == nil {
		writeJSON(w, http.StatusOK, checkResponse{Date: date, Locked: false})
		return
	}
	var lockErr *locks.PeriodLockedError
	if errors.As(err, &lockErr) {
		writeJSON(w, http.StatusOK, checkResponse{Date: date, Locked: true, Lock: &lockErr.Lock})
		return
	}
	h.writeError(w, err)
}
