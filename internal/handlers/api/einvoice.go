package api

import (
	"io"
	"net/http"

	"github.com/steuerkern/api/internal/einvoice"
)

// generateRequest selects the output dialect for an invoice.
type generateRequest struct {
	Format  string           `json:"format"` // "cii" or "ubl"
	Invoice einvoice.Invoice `json:"invoice"`
}

// generateResponse carries the rendered XML.
type generateResponse struct {
	Format string `json:"format"`
	XML    string `json:"xml"`
}

// ValidateInvoice handles POST /api/v1/einvoice/validate
func (h *Handler) ValidateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv einvoice.Invoice
	if !decodeBody(w, r, &inv) {
		return
	}
	writeJSON(w, http.StatusOK, einvoice.Validate(inv))
}

// GenerateInvoice handles POST /api/v1/einvoice/generate. Invoices that
// fail validation are refused with the full result so the caller can fix
// them.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if result := einvoice.Validate(req.Invoice); !result.Valid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}

	var (
		out []byte
		err error
	)
	switch req.Format {
	case "cii":
		out, err = einvoice.GenerateCII(req.Invoice)
	case "ubl":
		out, err = einvoice.GenerateUBL(req.Invoice)
	default:
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "format must be cii or ubl"})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Format: req.Format, XML: string(out)})
}

// ParseInvoice handles POST /api/v1/einvoice/parse. The body is the raw
// invoice XML.
func (h *Handler) ParseInvoice(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "could not read request body"})
		return
	}

	parsed, err := einvoice.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}
