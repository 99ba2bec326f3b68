// Package api exposes the suite as a JSON REST surface under /api/v1.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/locks"
	"github.com/steuerkern/api/internal/services/client"
	"github.com/steuerkern/api/internal/services/elster"
	"github.com/steuerkern/api/internal/services/euer"
	"github.com/steuerkern/api/internal/services/records"
	"github.com/steuerkern/api/internal/services/settings"
	"github.com/steuerkern/api/internal/services/susa"
	"github.com/steuerkern/api/internal/services/vatreturn"
)

// Handler holds the service dependencies of the API surface.
type Handler struct {
	records  *records.Service
	locks    *locks.Service
	audit    *audit.Service
	vat      *vatreturn.Service
	euer     *euer.Service
	susa     *susa.Service
	elster   *elster.Service
	clients  *client.Service
	settings *settings.Service
	logger   *slog.Logger
}

// NewHandler creates the API handler with all required services.
func NewHandler(
	recordsSvc *records.Service,
	lockSvc *locks.Service,
	auditSvc *audit.Service,
	vatSvc *vatreturn.Service,
	euerSvc *euer.Service,
	susaSvc *susa.Service,
	elsterSvc *elster.Service,
	clientSvc *client.Service,
	settingsSvc *settings.Service,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		records:  recordsSvc,
		locks:    lockSvc,
		audit:    auditSvc,
		vat:      vatSvc,
		euer:     euerSvc,
		susa:     susaSvc,
		elster:   elsterSvc,
		clients:  clientSvc,
		settings: settingsSvc,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/income", h.CreateIncome)
	mux.HandleFunc("GET /api/v1/income", h.ListIncome)
	mux.HandleFunc("GET /api/v1/income/{id}", h.GetIncome)
	mux.HandleFunc("PUT /api/v1/income/{id}", h.UpdateIncome)
	mux.HandleFunc("DELETE /api/v1/income/{id}", h.DeleteIncome)

	mux.HandleFunc("POST /api/v1/expenses", h.CreateExpense)
	mux.HandleFunc("GET /api/v1/expenses", h.ListExpenses)
	mux.HandleFunc("GET /api/v1/expenses/{id}", h.GetExpense)
	mux.HandleFunc("PUT /api/v1/expenses/{id}", h.UpdateExpense)
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", h.DeleteExpense)

	mux.HandleFunc("POST /api/v1/depreciation", h.CreateDepreciation)
	mux.HandleFunc("GET /api/v1/depreciation", h.ListDepreciation)
	mux.HandleFunc("DELETE /api/v1/depreciation/{id}", h.DeleteDepreciation)

	mux.HandleFunc("GET /api/v1/reports/vat", h.VATReport)
	mux.HandleFunc("GET /api/v1/reports/vat/year", h.VATYearOverview)
	mux.HandleFunc("GET /api/v1/reports/euer", h.EUERReport)
	mux.HandleFunc("GET /api/v1/reports/susa", h.SuSaReport)

	mux.HandleFunc("GET /api/v1/locks", h.ListLocks)
	mux.HandleFunc("POST /api/v1/locks", h.Lock)
	mux.HandleFunc("DELETE /api/v1/locks/{key}", h.Unlock)
	mux.HandleFunc("GET /api/v1/locks/check", h.CheckLock)

	mux.HandleFunc("GET /api/v1/audit/{entityType}/{entityId}", h.AuditHistory)
	mux.HandleFunc("GET /api/v1/audit", h.AuditSearch)

	mux.HandleFunc("POST /api/v1/einvoice/validate", h.ValidateInvoice)
	mux.HandleFunc("POST /api/v1/einvoice/generate", h.GenerateInvoice)
	mux.HandleFunc("POST /api/v1/einvoice/parse", h.ParseInvoice)

	mux.HandleFunc("POST /api/v1/submissions", h.CreateSubmission)
	mux.HandleFunc("POST /api/v1/submissions/validate", h.ValidateSubmission)
	mux.HandleFunc("GET /api/v1/submissions", h.ListSubmissions)
	mux.HandleFunc("GET /api/v1/submissions/{id}", h.GetSubmission)
	mux.HandleFunc("PUT /api/v1/submissions/{id}/status", h.UpdateSubmissionStatus)

	mux.HandleFunc("POST /api/v1/clients", h.CreateClient)
	mux.HandleFunc("GET /api/v1/clients", h.ListClients)
	mux.HandleFunc("GET /api/v1/clients/{id}", h.GetClient)
	mux.HandleFunc("PUT /api/v1/clients/{id}", h.UpdateClient)
	mux.HandleFunc("DELETE /api/v1/clients/{id}", h.DeleteClient)

	mux.HandleFunc("GET /api/v1/settings/{key}", h.GetSetting)
	mux.HandleFunc("PUT /api/v1/settings/{key}", h.SetSetting)
}

// errorJSON is the error response format.
type errorJSON struct {
	Error string `json:"error"`
	Lock  any    `json:"lock,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; just log the error.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps the service error taxonomy to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var lockErr *locks.PeriodLockedError
	switch {
	case errors.As(err, &lockErr):
		writeJSON(w, http.StatusConflict, errorJSON{Error: lockErr.Error(), Lock: lockErr.Lock})
	case errors.Is(err, elster.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorJSON{Error: err.Error()})
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// actor returns the audit actor for the request. Callers identify
// themselves via header; unauthenticated API use falls back to a fixed
// name.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
