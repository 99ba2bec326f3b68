package euer

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/ledger"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func lineAmount(lines []Line, name string) (decimal.Decimal, bool) {
	for _, l := range lines {
		if l.Name == name {
			return l.Amount, true
		}
	}
	return decimal.Zero, false
}

func TestComputeGewinn(t *testing.T) {
	rep := Compute(Inputs{
		Year: 2025,
		Incomes: []ledger.IncomeRecord{
			{Date: "2025-03-01", NetAmount: dec(t, "50000.00"), VATRate: 19, TaxLine: "Betriebseinnahmen"},
		},
		Expenses: []ledger.ExpenseRecord{
			{Date: "2025-04-01", NetAmount: dec(t, "1200.00"), DeductiblePercent: dec(t, "100"), TaxLine: "Bürobedarf"},
			{Date: "2025-05-02", NetAmount: dec(t, "59.90"), DeductiblePercent: dec(t, "70"), BusinessMeal: true, TaxLine: "Bewirtung"},
		},
	})

	if !rep.TotalIncome.Equal(dec(t, "50000.00")) {
		t.Errorf("totalIncome = %s, want 50000.00", rep.TotalIncome)
	}
	// The meal contributes its per-record rounded deductible share.
	if got, _ := lineAmount(rep.Expenses, "Bewirtung"); !got.Equal(dec(t, "41.93")) {
		t.Errorf("Bewirtung = %s, want 41.93", got)
	}
	if !rep.TotalExpenses.Equal(dec(t, "1241.93")) {
		t.Errorf("totalExpenses = %s, want 1241.93", rep.TotalExpenses)
	}
	if !rep.Gewinn.Equal(dec(t, "48758.07")) {
		t.Errorf("gewinn = %s, want 48758.07", rep.Gewinn)
	}
}

func TestComputeDepreciationLine(t *testing.T) {
	rep := Compute(Inputs{
		Year: 2025,
		Depreciation: []ledger.DepreciationEntry{
			{AssetName: "Laptop", Year: 2025, DepreciationAmount: dec(t, "433.33")},
			{AssetName: "Kamera", Year: 2025, DepreciationAmount: dec(t, "250.00")},
			{AssetName: "Laptop", Year: 2024, DepreciationAmount: dec(t, "433.33")},
		},
	})

	got, ok := lineAmount(rep.Expenses, ledger.LineAfA)
	if !ok {
		t.Fatal("AfA line missing")
	}
	if !got.Equal(dec(t, "683.33")) {
		t.Errorf("AfA = %s, want 683.33", got)
	}
}

func TestComputeHomeofficeFlatRate(t *testing.T) {
	base := Inputs{
		Year:              2025,
		HomeofficeEnabled: true,
		HomeofficeRate:    dec(t, "1260.00"),
	}

	t.Run("injected when no real expense", func(t *testing.T) {
		rep := Compute(base)
		got, ok := lineAmount(rep.Expenses, ledger.LineArbeitszimmer)
		if !ok {
			t.Fatal("Arbeitszimmer line missing")
		}
		if !got.Equal(dec(t, "1260.00")) {
			t.Errorf("Arbeitszimmer = %s, want 1260.00", got)
		}
	})

	t.Run("real expense wins", func(t *testing.T) {
		in := base
		in.Expenses = []ledger.ExpenseRecord{
			{Date: "2025-02-01", NetAmount: dec(t, "3000.00"), DeductiblePercent: dec(t, "100"), TaxLine: ledger.LineArbeitszimmer},
		}
		rep := Compute(in)
		got, _ := lineAmount(rep.Expenses, ledger.LineArbeitszimmer)
		if !got.Equal(dec(t, "3000.00")) {
			t.Errorf("Arbeitszimmer = %s, want 3000.00 (flat rate must not stack)", got)
		}
	})

	t.Run("empty year still gets the flat rate", func(t *testing.T) {
		rep := Compute(base)
		if len(rep.Income) != 0 {
			t.Errorf("income lines = %+v, want none", rep.Income)
		}
		if len(rep.Expenses) != 1 {
			t.Fatalf("expense lines = %+v, want only Arbeitszimmer", rep.Expenses)
		}
		if !rep.Gewinn.Equal(dec(t, "-1260.00")) {
			t.Errorf("gewinn = %s, want -1260.00", rep.Gewinn)
		}
	})

	t.Run("disabled flag omits line", func(t *testing.T) {
		in := base
		in.HomeofficeEnabled = false
		rep := Compute(in)
		if _, ok := lineAmount(rep.Expenses, ledger.LineArbeitszimmer); ok {
			t.Error("Arbeitszimmer line present with flag disabled")
		}
	})
}

func TestComputeEmptyYear(t *testing.T) {
	rep := Compute(Inputs{Year: 2025})
	if len(rep.Income) != 0 || len(rep.Expenses) != 0 {
		t.Errorf("empty year produced lines: %+v", rep)
	}
	if !rep.Gewinn.IsZero() {
		t.Errorf("gewinn = %s, want 0", rep.Gewinn)
	}
}

func TestComputeLinesSorted(t *testing.T) {
	rep := Compute(Inputs{
		Year: 2025,
		Expenses: []ledger.ExpenseRecord{
			{Date: "2025-01-01", NetAmount: dec(t, "10.00"), DeductiblePercent: dec(t, "100"), TaxLine: "Zinsen"},
			{Date: "2025-01-02", NetAmount: dec(t, "10.00"), DeductiblePercent: dec(t, "100"), TaxLine: "Bürobedarf"},
			{Date: "2025-01-03", NetAmount: dec(t, "10.00"), DeductiblePercent: dec(t, "100"), TaxLine: "Miete"},
		},
	})
	for i := 1; i < len(rep.Expenses); i++ {
		if rep.Expenses[i-1].Name > rep.Expenses[i].Name {
			t.Fatalf("lines not sorted: %q before %q", rep.Expenses[i-1].Name, rep.Expenses[i].Name)
		}
	}
}
