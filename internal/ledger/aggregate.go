package ledger

import "github.com/shopspring/decimal"

// RateSums holds income sums bucketed by VAT rate over a period.
// Amounts at 0% contribute to Net0 only; they never enter a VAT bucket.
type RateSums struct {
	Net19 decimal.Decimal
	VAT19 decimal.Decimal
	Net7  decimal.Decimal
	VAT7  decimal.Decimal
	Net0  decimal.Decimal
}

// SumIncomeByRate filters non-deleted income rows dated inside r and sums
// net and VAT amounts per rate. Sums are carried at full precision and
// rounded to cents once at the end, so the period totals are exact
// regardless of row count.
func SumIncomeByRate(rows []IncomeRecord, r Range) RateSums {
	var s RateSums
	for _, row := range rows {
		if row.Deleted || !r.Contains(row.Date) {
			continue
		}
		switch row.VATRate {
		case RateStandard:
			s.Net19 = s.Net19.Add(row.NetAmount)
			s.VAT19 = s.VAT19.Add(row.VATAmount)
		case RateReduced:
			s.Net7 = s.Net7.Add(row.NetAmount)
			s.VAT7 = s.VAT7.Add(row.VATAmount)
		default:
			s.Net0 = s.Net0.Add(row.NetAmount)
		}
	}
	s.Net19 = s.Net19.Round(2)
	s.VAT19 = s.VAT19.Round(2)
	s.Net7 = s.Net7.Round(2)
	s.VAT7 = s.VAT7.Round(2)
	s.Net0 = s.Net0.Round(2)
	return s
}

// SumExpenseVAT sums the input VAT of non-deleted expense rows dated inside
// r, rounded once at the end. The deductible percentage is deliberately
// ignored: input-VAT reclaim is independent of profit deductibility.
func SumExpenseVAT(rows []ExpenseRecord, r Range) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		if row.Deleted || !r.Contains(row.Date) {
			continue
		}
		total = total.Add(row.VATAmount)
	}
	return total.Round(2)
}

// SumIncomeByLine groups net amounts of non-deleted income rows dated
// inside r by tax form line. Rows without a line fall into
// DefaultIncomeLine.
func SumIncomeByLine(rows []IncomeRecord, r Range) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range rows {
		if row.Deleted || !r.Contains(row.Date) {
			continue
		}
		line := row.TaxLine
		if line == "" {
			line = DefaultIncomeLine
		}
		out[line] = out[line].Add(row.NetAmount)
	}
	roundLines(out)
	return out
}

// SumDeductibleByLine groups the deductible share of non-deleted expense
// rows dated inside r by tax form line. Each row's contribution is rounded
// to cents before summing, so a single row's effect on the statement equals
// its DeductibleAmount exactly. Rows without a line fall into
// DefaultExpenseLine.
func SumDeductibleByLine(rows []ExpenseRecord, r Range) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range rows {
		if row.Deleted || !r.Contains(row.Date) {
			continue
		}
		line := row.TaxLine
		if line == "" {
			line = DefaultExpenseLine
		}
		out[line] = out[line].Add(row.DeductibleAmount())
	}
	return out
}

// SumDepreciation sums the depreciation amounts booked for a year.
func SumDepreciation(entries []DepreciationEntry, year int) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Year != year {
			continue
		}
		total = total.Add(e.DepreciationAmount)
	}
	return total.Round(2)
}

func roundLines(m map[string]decimal.Decimal) {
	for k, v := range m {
		m[k] = v.Round(2)
	}
}
