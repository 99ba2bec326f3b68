// Package susa renders a summen- und saldenliste (trial balance) over an
// SKR03-flavoured chart of accounts.
package susa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
)

// Fixed accounts of the chart.
const (
	AccountRevenue19  = 8400 // Erlöse 19% USt
	AccountRevenue7   = 8300 // Erlöse 7% USt
	AccountRevenue0   = 8120 // Steuerfreie Umsätze
	AccountOutputVAT  = 1770 // Umsatzsteuer
	AccountInputVAT   = 1570 // Vorsteuer
	AccountOtherCosts = 4900 // Sonstige betriebliche Aufwendungen
)

// expenseAccounts maps tax form lines to their expense account. Lines not
// listed here fall into AccountOtherCosts; an unknown line is never an
// error.
var expenseAccounts = map[string]accountDef{
	"Miete":                    {4210, "Miete"},
	"Versicherungen":           {4360, "Versicherungen"},
	"Bewirtung":                {4650, "Bewirtungskosten"},
	"Reisekosten":              {4670, "Reisekosten"},
	ledger.LineAfA:             {4830, "Abschreibungen"},
	"Telekommunikation":        {4920, "Telefon und Internet"},
	"Bürobedarf":               {4930, "Bürobedarf"},
	"Fachliteratur":            {4940, "Fachliteratur"},
	"Fortbildung":              {4945, "Fortbildungskosten"},
	ledger.LineArbeitszimmer:   {4288, "Häusliches Arbeitszimmer"},
}

type accountDef struct {
	number int
	name   string
}

// Account is one row of the trial balance. Balance is debit minus credit.
type Account struct {
	Number  int             `json:"number"`
	Name    string          `json:"name"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// Report is the trial balance of one calendar year.
type Report struct {
	Year        int             `json:"year"`
	Accounts    []Account       `json:"accounts"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
}

// Compute builds the trial balance from year-filtered rows. Revenue
// accounts are chosen by VAT rate; output VAT is credited to one
// collective account and input VAT debited to another. Expense nets are
// deductible-weighted, matching the profit statement.
func Compute(year int, incomes []ledger.IncomeRecord, expenses []ledger.ExpenseRecord, depreciation []ledger.DepreciationEntry) Report {
	r := ledger.YearRange(year)
	type side struct{ debit, credit decimal.Decimal }
	accounts := make(map[int]*side)
	names := make(map[int]string)

	book := func(def accountDef, debit, credit decimal.Decimal) {
		acc, ok := accounts[def.number]
		if !ok {
			acc = &side{}
			accounts[def.number] = acc
			names[def.number] = def.name
		}
		acc.debit = acc.debit.Add(debit)
		acc.credit = acc.credit.Add(credit)
	}

	sums := ledger.SumIncomeByRate(incomes, r)
	if !sums.Net19.IsZero() {
		book(accountDef{AccountRevenue19, "Erlöse 19% USt"}, decimal.Zero, sums.Net19)
	}
	if !sums.Net7.IsZero() {
		book(accountDef{AccountRevenue7, "Erlöse 7% USt"}, decimal.Zero, sums.Net7)
	}
	if !sums.Net0.IsZero() {
		book(accountDef{AccountRevenue0, "Steuerfreie Umsätze"}, decimal.Zero, sums.Net0)
	}
	if outputVAT := sums.VAT19.Add(sums.VAT7); !outputVAT.IsZero() {
		book(accountDef{AccountOutputVAT, "Umsatzsteuer"}, decimal.Zero, outputVAT)
	}

	for line, amount := range ledger.SumDeductibleByLine(expenses, r) {
		def, ok := expenseAccounts[line]
		if !ok {
			def = accountDef{AccountOtherCosts, "Sonstige betriebliche Aufwendungen"}
		}
		book(def, amount, decimal.Zero)
	}
	if inputVAT := ledger.SumExpenseVAT(expenses, r); !inputVAT.IsZero() {
		book(accountDef{AccountInputVAT, "Vorsteuer"}, inputVAT, decimal.Zero)
	}
	if afa := ledger.SumDepreciation(depreciation, year); !afa.IsZero() {
		book(expenseAccounts[ledger.LineAfA], afa, decimal.Zero)
	}

	rep := Report{Year: year}
	numbers := make([]int, 0, len(accounts))
	for n := range accounts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		acc := accounts[n]
		debit := acc.debit.Round(2)
		credit := acc.credit.Round(2)
		rep.Accounts = append(rep.Accounts, Account{
			Number:  n,
			Name:    names[n],
			Debit:   debit,
			Credit:  credit,
			Balance: debit.Sub(credit),
		})
		rep.TotalDebit = rep.TotalDebit.Add(debit)
		rep.TotalCredit = rep.TotalCredit.Add(credit)
	}
	return rep
}

// RecordSource is the read surface the generator needs.
type RecordSource interface {
	IncomeInRange(ctx context.Context, r ledger.Range) ([]ledger.IncomeRecord, error)
	ExpensesInRange(ctx context.Context, r ledger.Range) ([]ledger.ExpenseRecord, error)
	DepreciationForYear(ctx context.Context, year int) ([]ledger.DepreciationEntry, error)
}

// Service builds trial balances from stored records.
type Service struct {
	records RecordSource
	logger  *slog.Logger
}

// NewService creates a new SuSa service.
func NewService(records RecordSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// YearReport computes the trial balance for one calendar year.
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

	return Compute(year, incomes, expenses, depreciation), nil
}
