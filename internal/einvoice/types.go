// Package einvoice implements the EN16931 e-invoice engine: a rule
// validator over one canonical invoice structure, two independent XML
// generators for the UN/CEFACT CII syntax (ZUGFeRD 2.1 Comfort) and the
// UBL 2.1 syntax (X-Rechnung 3.0), and a deliberately lossy reverse parser
// that extracts headline fields from either dialect.
package einvoice

import "github.com/shopspring/decimal"

// Invoice is the canonical invoice structure both generators serialize
// and the validator checks. Dates are ISO calendar-day strings.
type Invoice struct {
	Number         string `json:"number"`
	IssueDate      string `json:"issueDate"`
	DueDate        string `json:"dueDate"`
	TypeCode       string `json:"typeCode"`       // UNTDID 1001, "380" for a commercial invoice
	Currency       string `json:"currency"`       // ISO 4217
	BuyerReference string `json:"buyerReference"` // Leitweg-ID for German public-sector buyers

	Seller Party `json:"seller"`
	Buyer  Party `json:"buyer"`

	Lines        []Line      `json:"lines"`
	TaxBreakdown []TaxDetail `json:"taxBreakdown"`

	Subtotal decimal.Decimal `json:"subtotal"` // sum of line totals, net
	VATTotal decimal.Decimal `json:"vatTotal"`
	Total    decimal.Decimal `json:"total"` // subtotal + VAT

	Payment *Payment `json:"payment,omitempty"` // omitted from the XML when nil
	Notes   string   `json:"notes,omitempty"`
}

// Party identifies the seller or buyer, with a complete postal address.
type Party struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"` // ISO 3166-1 alpha-2
	VATID       string `json:"vatId"`       // e.g. DE123456789
	TaxNumber   string `json:"taxNumber"`   // national tax number, seller fallback for VATID
	Email       string `json:"email,omitempty"`
}

// Line is one invoice position.
type Line struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCode    string          `json:"unitCode,omitempty"` // UN/ECE rec 20, "C62" when empty
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	VATRate     int             `json:"vatRate"`
	LineTotal   decimal.Decimal `json:"lineTotal"` // net
}

// TaxDetail is one rate bucket of the tax breakdown.
type TaxDetail struct {
	CategoryCode string          `json:"categoryCode"` // UNTDID 5305, "S" standard / "Z" zero-rated
	Rate         int             `json:"rate"`
	BasisAmount  decimal.Decimal `json:"basisAmount"`
	TaxAmount    decimal.Decimal `json:"taxAmount"`
}

// Payment carries the credit-transfer details. All fields are optional.
type Payment struct {
	IBAN        string `json:"iban"`
	BIC         string `json:"bic"`
	AccountName string `json:"accountName,omitempty"`
	Terms       string `json:"terms,omitempty"`
}

// ValidationResult is the validator's outcome. It is always returned,
// never raised: callers decide whether warnings block filing.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
