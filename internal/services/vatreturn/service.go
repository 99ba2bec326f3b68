// Package vatreturn computes German VAT advance return figures (USt-VA)
// for monthly and quarterly periods.
package vatreturn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
	"github.com/steuerkern/api/internal/services/records"
)

// Period types accepted by the calculator.
const (
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
)

// Report holds the figures of one advance return period. Zahllast is
// signed: positive means VAT owed, negative a refund claim.
type Report struct {
	Year       int    `json:"year"`
	Period     int    `json:"period"`
	PeriodType string `json:"periodType"`
	Start      string `json:"start"`
	End        string `json:"end"`

	Net19             decimal.Decimal `json:"net19"`
	Net7              decimal.Decimal `json:"net7"`
	Net0              decimal.Decimal `json:"net0"`
	Umsatzsteuer19    decimal.Decimal `json:"umsatzsteuer19"`
	Umsatzsteuer7     decimal.Decimal `json:"umsatzsteuer7"`
	TotalUmsatzsteuer decimal.Decimal `json:"totalUmsatzsteuer"`
	Vorsteuer         decimal.Decimal `json:"vorsteuer"`
	Zahllast          decimal.Decimal `json:"zahllast"`
}

// YearOverview bundles the four quarterly reports of a year with the
// annual totals.
type YearOverview struct {
	Year     int      `json:"year"`
	Quarters []Report `json:"quarters"`

	TotalUmsatzsteuer decimal.Decimal `json:"totalUmsatzsteuer"`
	TotalVorsteuer    decimal.Decimal `json:"totalVorsteuer"`
	TotalZahllast     decimal.Decimal `json:"totalZahllast"`
}

// Compute derives a report from period-filtered rows. It is pure; the
// service wraps it with the database reads.
func Compute(incomes []ledger.IncomeRecord, expenses []ledger.ExpenseRecord, r ledger.Range) Report {
	sums := ledger.SumIncomeByRate(incomes, r)
	vorsteuer := ledger.SumExpenseVAT(expenses, r)
	total := sums.VAT19.Add(sums.VAT7)

	return Report{
		Start:             r.Start,
		End:               r.End,
		Net19:             sums.Net19,
		Net7:              sums.Net7,
		Net0:              sums.Net0,
		Umsatzsteuer19:    sums.VAT19,
		Umsatzsteuer7:     sums.VAT7,
		TotalUmsatzsteuer: total,
		Vorsteuer:         vorsteuer,
		Zahllast:          total.Sub(vorsteuer),
	}
}

// RecordSource is the read surface the calculator needs. ReadSnapshot
// hands fn a view pinned to one committed ledger state, so reports that
// aggregate several periods stay mutually consistent.
type RecordSource interface {
	records.Reader
	ReadSnapshot(ctx context.Context, fn func(records.Reader) error) error
}

// Service computes advance return reports from stored records.
type Service struct {
	records RecordSource
	logger  *slog.Logger
}

// NewService creates a new VAT return service.
func NewService(records RecordSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// PeriodReport computes the report for one month or quarter. The period
// bounds are validated before any query runs, and both reads share one
// snapshot.
func (s *Service) PeriodReport(ctx context.Context, year, period int, periodType string) (Report, error) {
	r, err := periodRange(year, period, periodType)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	err = s.records.ReadSnapshot(ctx, func(src records.Reader) error {
		rep, err = reportFor(ctx, src, year, period, periodType, r)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

// YearOverview computes the four quarterly reports of a year plus annual
// totals. All quarters read from one ledger snapshot, so the quarterly
// figures always partition the annual totals even while writes are
// landing concurrently.
func (s *Service) YearOverview(ctx context.Context, year int) (YearOverview, error) {
	if _, err := periodRange(year, 1, PeriodQuarter); err != nil {
		return YearOverview{}, err
	}

	ov := YearOverview{Year: year}
	err := s.records.ReadSnapshot(ctx, func(src records.Reader) error {
		for q := 1; q <= 4; q++ {
			rep, err := reportFor(ctx, src, year, q, PeriodQuarter, ledger.QuarterRange(year, q))
			if err != nil {
				return err
			}
			ov.Quarters = append(ov.Quarters, rep)
			ov.TotalUmsatzsteuer = ov.TotalUmsatzsteuer.Add(rep.TotalUmsatzsteuer)
			ov.TotalVorsteuer = ov.TotalVorsteuer.Add(rep.Vorsteuer)
			ov.TotalZahllast = ov.TotalZahllast.Add(rep.Zahllast)
		}
		return nil
	})
	if err != nil {
		return YearOverview{}, err
	}
	return ov, nil
}

func reportFor(ctx context.Context, src records.Reader, year, period int, periodType string, r ledger.Range) (Report, error) {
	incomes, err := src.IncomeInRange(ctx, r)
	if err != nil {
		return Report{}, fmt.Errorf("loading income for %s..%s: %w", r.Start, r.End, err)
	}
	expenses, err := src.ExpensesInRange(ctx, r)
	if err != nil {
		return Report{}, fmt.Errorf("loading expenses for %s..%s: %w", r.Start, r.End, err)
	}

	rep := Compute(incomes, expenses, r)
	rep.Year = year
	rep.Period = period
	rep.PeriodType = periodType
	return rep, nil
}

func periodRange(year, period int, periodType string) (ledger.Range, error) {
	if year < 2000 || year > 2100 {
		return ledger.Range{}, apperr.Validation("year %d is out of range", year)
	}
	switch periodType {
	case PeriodMonth:
		if period < 1 || period > 12 {
			return ledger.Range{}, apperr.Validation("month %d is out of range 1..12", period)
		}
		return ledger.MonthRange(year, period), nil
	case PeriodQuarter:
		if period < 1 || period > 4 {
			return ledger.Range{}, apperr.Validation("quarter %d is out of range 1..4", period)
		}
		return ledger.QuarterRange(year, period), nil
	default:
		return ledger.Range{}, apperr.Validation("period type %q must be month or quarter", periodType)
	}
}
