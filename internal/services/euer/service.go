// Package euer computes the annual profit statement
// (Einnahmen-Überschuss-Rechnung) from the ledger.
package euer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
)

// Line is one named row of the statement.
type Line struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Report is the profit statement of one calendar year. Expense amounts are
// deductible-weighted nets; income amounts are plain nets.
type Report struct {
	Year          int             `json:"year"`
	Income        []Line          `json:"income"`
	Expenses      []Line          `json:"expenses"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Gewinn        decimal.Decimal `json:"gewinn"`
}

// Inputs bundles the pure Compute parameters.
type Inputs struct {
	Year              int
	Incomes           []ledger.IncomeRecord
	Expenses          []ledger.ExpenseRecord
	Depreciation      []ledger.DepreciationEntry
	HomeofficeEnabled bool
	HomeofficeRate    decimal.Decimal
}

// Compute builds the statement. The Homeoffice-Pauschale is injected into
// the Arbeitszimmer line only when the flag is on and no real expense was
// booked on that line during the year; a booked expense always wins and
// the flat rate is never added on top. The flag applies even to an
// otherwise empty year, which then shows a loss of the flat rate. With
// the flag off an empty year yields zero totals and no synthetic lines.
func Compute(in Inputs) Report {
	r := ledger.YearRange(in.Year)

	incomeLines := ledger.SumIncomeByLine(in.Incomes, r)
	expenseLines := ledger.SumDeductibleByLine(in.Expenses, r)

	if afa := ledger.SumDepreciation(in.Depreciation, in.Year); !afa.IsZero() {
		expenseLines[ledger.LineAfA] = expenseLines[ledger.LineAfA].Add(afa)
	}

	if in.HomeofficeEnabled {
		if _, booked := expenseLines[ledger.LineArbeitszimmer]; !booked {
			expenseLines[ledger.LineArbeitszimmer] = in.HomeofficeRate.Round(2)
		}
	}

	rep := Report{Year: in.Year}
	rep.Income, rep.TotalIncome = sortedLines(incomeLines)
	rep.Expenses, rep.TotalExpenses = sortedLines(expenseLines)
	rep.Gewinn = rep.TotalIncome.Sub(rep.TotalExpenses)
	return rep
}

func sortedLines(m map[string]decimal.Decimal) ([]Line, decimal.Decimal) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]Line, 0, len(names))
	total := decimal.Zero
	for _, name := range names {
		lines = append(lines, Line{Name: name, Amount: m[name]})
		total = total.Add(m[name])
	}
	return lines, total.Round(2)
}

// RecordSource is the read surface the calculator needs.
type RecordSource interface {
	IncomeInRange(ctx context.Context, r ledger.Range) ([]ledger.IncomeRecord, error)
	ExpensesInRange(ctx context.Context, r ledger.Range) ([]ledger.ExpenseRecord, error)
	DepreciationForYear(ctx context.Context, year int) ([]ledger.DepreciationEntry, error)
}

// SettingsSource supplies the homeoffice configuration.
type SettingsSource interface {
	HomeofficeEnabled(ctx context.Context) (bool, error)
	HomeofficeRate(ctx context.Context) (decimal.Decimal, error)
}

// Service computes yearly statements from stored records and settings.
type Service struct {
	records  RecordSource
	settings SettingsSource
	logger   *slog.Logger
}

// NewService creates a new EÜR service.
func NewService(records RecordSource, settings SettingsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, settings: settings, logger: logger}
}

// YearReport computes the statement for one calendar year.
func (s *Service) YearReport(ctx context.Context, year int) (Report, error) {
	if year < 2000 || year > 2100 {
		return Report{}, apperr.Validation("year %d is out of range", year)
	}
	r := ledger.YearRange(year)

	incomes, err := s.records.IncomeInRange(ctx, r)
	if err != nil {
		return Report{}, fmt.Errorf("loading income for %d: %w", year, err)
	}
	expenses, err := s.records.ExpensesInRange(ctx, r)
	if err != nil {
		return Report{}, fmt.Errorf("loading expenses for %d: %w", year, err)
	}
	depreciation, err := s.records.DepreciationForYear(ctx, year)
	if err != nil {
		return Report{}, fmt.Errorf("loading depreciation for %d: %w", year, err)
	}
	enabled, err := s.settings.HomeofficeEnabled(ctx)
	if err != nil {
		return Report{}, err
	}
	rate := decimal.Zero
	if enabled {
		if rate, err = s.settings.HomeofficeRate(ctx); err != nil {
			return Report{}, err
		}
	}

	return Compute(Inputs{
		Year:              year,
		Incomes:           incomes,
		Expenses:          expenses,
		Depreciation:      depreciation,
		HomeofficeEnabled: enabled,
		HomeofficeRate:    rate,
	}), nil
}
