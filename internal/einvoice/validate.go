package einvoice

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// tolerance is the maximum divergence accepted by the arithmetic
// cross-checks, one cent.
var tolerance = decimal.New(1, -2)

// Validate checks an invoice against the EN16931 business rules the engine
// enforces. It never returns an error: malformed invoices yield a result
// with Valid=false and per-rule messages, and rounding artifacts on line
// arithmetic are reported as warnings only.
func Validate(inv Invoice) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	// Document level.
	if inv.Number == "" {
		res.fail("BR-02: invoice number is required")
	}
	if inv.IssueDate == "" {
		res.fail("BR-03: issue date is required")
	}
	if inv.TypeCode == "" {
		res.fail("BR-04: invoice type code is required")
	}
	if len(inv.Currency) != 3 {
		res.fail(fmt.Sprintf("BR-05: currency code %q must be a 3-letter ISO 4217 code", inv.Currency))
	}

	// Seller.
	if inv.Seller.Name == "" {
		res.fail("BR-06: seller name is required")
	}
	checkAddress(&res, "seller", inv.Seller, "BR-08")
	if inv.Seller.VATID == "" && inv.Seller.TaxNumber == "" {
		res.fail("BR-CO-26: seller must provide a VAT identifier or a tax number")
	}

	// Buyer.
	if inv.Buyer.Name == "" {
		res.fail("BR-07: buyer name is required")
	}
	checkAddress(&res, "buyer", inv.Buyer, "BR-10")

	// Lines.
	if len(inv.Lines) == 0 {
		res.fail("BR-16: invoice must have at least one line")
	}
	for i, line := range inv.Lines {
		pos := i + 1
		if line.Description == "" {
			res.fail(fmt.Sprintf("BR-25: line %d has no description", pos))
		}
		if !line.Quantity.IsPositive() {
			res.fail(fmt.Sprintf("BR-22: line %d quantity must be positive", pos))
		}
		computed := line.Quantity.Mul(line.UnitPrice).Round(2)
		if computed.Sub(line.LineTotal).Abs().GreaterThan(tolerance) {
			res.warn(fmt.Sprintf(
				"line %d: quantity x unit price = %s differs from stated line total %s",
				pos, computed.StringFixed(2), line.LineTotal.StringFixed(2),
			))
		}
	}

	// Arithmetic cross-checks.
	lineSum := decimal.Zero
	for _, line := range inv.Lines {
		lineSum = lineSum.Add(line.LineTotal)
	}
	if len(inv.Lines) > 0 && lineSum.Sub(inv.Subtotal).Abs().GreaterThan(tolerance) {
		res.fail(fmt.Sprintf(
			"BR-CO-10: sum of line totals %s does not equal subtotal %s",
			lineSum.StringFixed(2), inv.Subtotal.StringFixed(2),
		))
	}

	taxSum := decimal.Zero
	for _, td := range inv.TaxBreakdown {
		taxSum = taxSum.Add(td.TaxAmount)
	}
	if taxSum.Sub(inv.VATTotal).Abs().GreaterThan(tolerance) {
		res.fail(fmt.Sprintf(
			"BR-CO-14: sum of tax breakdown amounts %s does not equal VAT total %s",
			taxSum.StringFixed(2), inv.VATTotal.StringFixed(2),
		))
	}

	if inv.Subtotal.Add(inv.VATTotal).Sub(inv.Total).Abs().GreaterThan(tolerance) {
		res.fail(fmt.Sprintf(
			"BR-CO-15: subtotal %s + VAT total %s does not equal total %s",
			inv.Subtotal.StringFixed(2), inv.VATTotal.StringFixed(2), inv.Total.StringFixed(2),
		))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func checkAddress(res *ValidationResult, role string, p Party, rule string) {
	if p.Street == "" || p.PostalCode == "" || p.City == "" {
		res.fail(fmt.Sprintf("%s: %s postal address must include street, postal code and city", rule, role))
	}
	if len(p.CountryCode) != 2 {
		res.fail(fmt.Sprintf("%s: %s country code %q must be a 2-letter ISO 3166 code", rule, role, p.CountryCode))
	}
}

func (r *ValidationResult) fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *ValidationResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
