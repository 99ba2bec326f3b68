package einvoice

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BuildTaxBreakdown groups invoice lines by VAT rate into the tax
// breakdown both syntaxes require, one bucket per rate, sorted ascending
// by rate. Tax amounts are computed from the summed basis and rounded to
// cents per bucket.
func BuildTaxBreakdown(lines []Line) []TaxDetail {
	basis := make(map[int]decimal.Decimal)
	for _, line := range lines {
		basis[line.VATRate] = basis[line.VATRate].Add(line.LineTotal)
	}

	rates := make([]int, 0, len(basis))
	for rate := range basis {
		rates = append(rates, rate)
	}
	sort.Ints(rates)

	out := make([]TaxDetail, 0, len(rates))
	for _, rate := range rates {
		b := basis[rate].Round(2)
		out = append(out, TaxDetail{
			CategoryCode: taxCategory(rate),
			Rate:         rate,
			BasisAmount:  b,
			TaxAmount:    b.Mul(decimal.NewFromInt(int64(rate))).Div(decimal.NewFromInt(100)).Round(2),
		})
	}
	return out
}

// ComputeTotals derives Subtotal, VATTotal and Total from the lines and
// tax breakdown, rounded to cents. It overwrites any totals already set.
func ComputeTotals(inv *Invoice) {
	subtotal := decimal.Zero
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	vat := decimal.Zero
	for _, td := range inv.TaxBreakdown {
		vat = vat.Add(td.TaxAmount)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.VATTotal = vat.Round(2)
	inv.Total = inv.Subtotal.Add(inv.VATTotal)
}
