package api

import (
	"encoding/json"
	"net/http"
)

// settingResponse wraps a stored setting value.
type settingResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// GetSetting handles GET /api/v1/settings/{key}
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var value json.RawMessage
	if err := h.settings.Get(r.Context(), key, &value); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

// SetSetting handles PUT /api/v1/settings/{key}. The body is the raw JSON
// value to store.
func (h *Handler) SetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var value json.RawMessage
	if !decodeBody(w, r, &value) {
		return
	}
	if err := h.settings.Set(r.Context(), key, value); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}
