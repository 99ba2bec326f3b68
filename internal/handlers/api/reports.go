package api

import (
	"net/http"

	"github.com/steuerkern/api/internal/services/vatreturn"
)

// VATReport handles GET /api/v1/reports/vat?year=&period=&periodType=
func (h *Handler) VATReport(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "year query parameter is required"})
		return
	}
	period, ok := queryInt(r, "period")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "period query parameter is required"})
		return
	}
	periodType := r.URL.Query().Get("periodType")
	if periodType == "" {
		periodType = vatreturn.PeriodQuarter
	}

	rep, err := h.vat.PeriodReport(r.Context(), year, period, periodType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// VATYearOverview handles GET /api/v1/reports/vat/year?year=
func (h *Handler) VATYearOverview(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "year query parameter is required"})
		return
	}
	ov, err := h.vat.YearOverview(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// EUERReport handles GET /api/v1/reports/euer?year=
func (h *Handler) EUERReport(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "year query parameter is required"})
		return
	}
	rep, err := h.euer.YearReport(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// SuSaReport handles GET /api/v1/reports/susa?year=
func (h *Handler) SuSaReport(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "year query parameter is required"})
		return
	}
	rep, err := h.susa.YearReport(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
