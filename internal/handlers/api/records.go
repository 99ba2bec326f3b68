package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/ledger"
	"github.com/steuerkern/api/internal/services/records"
)

// incomeRequest is the caller-facing income record body.
type incomeRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	VATRate     int             `json:"vatRate"`
	TaxLine     string          `json:"taxLine"`
	ClientID    *uuid.UUID      `json:"clientId"`
}

func (req incomeRequest) input() records.IncomeInput {
	return records.IncomeInput{
		Date:        req.Date,
		Description: req.Description,
		NetAmount:   req.NetAmount,
		VATRate:     req.VATRate,
		TaxLine:     req.TaxLine,
		ClientID:    req.ClientID,
	}
}

// expenseRequest is the caller-facing expense record body.
type expenseRequest struct {
	Date              string          `json:"date"`
	Description       string          `json:"description"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	VATRate           int             `json:"vatRate"`
	DeductiblePercent decimal.Decimal `json:"deductiblePercent"`
	BusinessMeal      bool            `json:"businessMeal"`
	TaxLine           string          `json:"taxLine"`
}

func (req expenseRequest) input() records.ExpenseInput {
	pct := req.DeductiblePercent
	if pct.IsZero() && !req.BusinessMeal {
		pct = decimal.NewFromInt(100)
	}
	return records.ExpenseInput{
		Date:              req.Date,
		Description:       req.Description,
		NetAmount:         req.NetAmount,
		VATRate:           req.VATRate,
		DeductiblePercent: pct,
		BusinessMeal:      req.BusinessMeal,
		TaxLine:           req.TaxLine,
	}
}

// depreciationRequest is the caller-facing depreciation entry body.
type depreciationRequest struct {
	AssetName               string          `json:"assetName"`
	Year                    int             `json:"year"`
	DepreciationAmount      decimal.Decimal `json:"depreciationAmount"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulatedDepreciation"`
	BookValue               decimal.Decimal `json:"bookValue"`
}

// rangeFromQuery reads from/to query parameters; a missing bound is wide
// open.
func rangeFromQuery(r *http.Request) ledger.Range {
	q := r.URL.Query()
	rng := ledger.Range{Start: q.Get("from"), End: q.Get("to")}
	if rng.Start == "" {
		rng.Start = "0000-01-01"
	}
	if rng.End == "" {
		rng.End = "9999-12-31"
	}
	return rng
}

// CreateIncome handles POST /api/v1/income
func (h *Handler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.records.CreateIncome(r.Context(), req.input(), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListIncome handles GET /api/v1/income
func (h *Handler) ListIncome(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.IncomeInRange(r.Context(), rangeFromQuery(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []ledger.IncomeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetIncome handles GET /api/v1/income/{id}
func (h *Handler) GetIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.records.GetIncome(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateIncome handles PUT /api/v1/income/{id}
func (h *Handler) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req incomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.records.UpdateIncome(r.Context(), id, req.input(), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteIncome handles DELETE /api/v1/income/{id}
func (h *Handler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteIncome(r.Context(), id, actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateExpense handles POST /api/v1/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.records.CreateExpense(r.Context(), req.input(), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.ExpensesInRange(r.Context(), rangeFromQuery(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []ledger.ExpenseRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetExpense handles GET /api/v1/expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.records.GetExpense(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateExpense handles PUT /api/v1/expenses/{id}
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.records.UpdateExpense(r.Context(), id, req.input(), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteExpense handles DELETE /api/v1/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteExpense(r.Context(), id, actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateDepreciation handles POST /api/v1/depreciation
func (h *Handler) CreateDepreciation(w http.ResponseWriter, r *http.Request) {
	var req depreciationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.records.CreateDepreciation(r.Context(), records.DepreciationInput{
		AssetName:               req.AssetName,
		Year:                    req.Year,
		DepreciationAmount:      req.DepreciationAmount,
		AccumulatedDepreciation: req.AccumulatedDepreciation,
		BookValue:               req.BookValue,
	}, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListDepreciation handles GET /api/v1/depreciation
func (h *Handler) ListDepreciation(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "year query parameter is required"})
		return
	}
	entries, err := h.records.DepreciationForYear(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.DepreciationEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DeleteDepreciation handles DELETE /api/v1/depreciation/{id}
func (h *Handler) DeleteDepreciation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteDepreciation(r.Context(), id, actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
