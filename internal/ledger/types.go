// Package ledger defines the financial record types of the suite and the
// pure aggregation functions the report calculators are built on. Nothing
// in this package touches the database; stores fetch period-filtered rows
// and hand them to the functions here.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VAT rates valid for German domestic supplies, in percent.
const (
	RateZero     = 0
	RateReduced  = 7
	RateStandard = 19
)

// Default tax form lines applied when a record does not specify one.
const (
	DefaultIncomeLine  = "Betriebseinnahmen"
	DefaultExpenseLine = "Sonstige"
)

// Tax form lines with special handling in the EÜR calculator.
const (
	LineAfA           = "AfA"
	LineArbeitszimmer = "Arbeitszimmer"
)

// MealDeductiblePercent is the statutory deductible share for business meals.
const MealDeductiblePercent = 70

var hundred = decimal.NewFromInt(100)

// IncomeRecord is a single revenue row. Dates are ISO calendar-day strings
// (YYYY-MM-DD) and compare lexicographically.
type IncomeRecord struct {
	ID          uuid.UUID       `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	VATRate     int             `json:"vatRate"` // 0, 7 or 19
	VATAmount   decimal.Decimal `json:"vatAmount"`
	TaxLine     string          `json:"taxLine"`
	ClientID    *uuid.UUID      `json:"clientId,omitempty"`
	Deleted     bool            `json:"deleted"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ExpenseRecord is a single cost row. DeductiblePercent weights the net
// amount for profit purposes; it has no effect on input VAT.
type ExpenseRecord struct {
	ID                uuid.UUID       `json:"id"`
	Date              string          `json:"date"`
	Description       string          `json:"description"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	VATRate           int             `json:"vatRate"`
	VATAmount         decimal.Decimal `json:"vatAmount"`
	DeductiblePercent decimal.Decimal `json:"deductiblePercent"` // 0..100
	BusinessMeal      bool            `json:"businessMeal"`
	TaxLine           string          `json:"taxLine"`
	Deleted           bool            `json:"deleted"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// DeductibleAmount returns the deductible share of the net amount,
// rounded to cents.
func (e ExpenseRecord) DeductibleAmount() decimal.Decimal {
	return e.NetAmount.Mul(e.DeductiblePercent).Div(hundred).Round(2)
}

// DepreciationEntry is one year's depreciation for one asset. Multiple
// entries per asset and year sum into the EÜR AfA line.
type DepreciationEntry struct {
	ID                      uuid.UUID       `json:"id"`
	AssetName               string          `json:"assetName"`
	Year                    int             `json:"year"`
	DepreciationAmount      decimal.Decimal `json:"depreciationAmount"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulatedDepreciation"`
	BookValue               decimal.Decimal `json:"bookValue"`
	CreatedAt               time.Time       `json:"createdAt"`
}

// ValidRate reports whether rate is one of the supported German VAT rates.
func ValidRate(rate int) bool {
	return rate == RateZero || rate == RateReduced || rate == RateStandard
}

// VATAmountFor computes the VAT owed on a net amount at an integer percent
// rate, rounded to cents. Every stored income row must satisfy
// VATAmount == VATAmountFor(NetAmount, VATRate).
func VATAmountFor(net decimal.Decimal, rate int) decimal.Decimal {
	return net.Mul(decimal.NewFromInt(int64(rate))).Div(hundred).Round(2)
}
