package records

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
)

func TestIncomeInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      IncomeInput
		wantErr bool
	}{
		{"valid", IncomeInput{Date: "2025-03-14", VATRate: 19}, false},
		{"reduced rate", IncomeInput{Date: "2025-03-14", VATRate: 7}, false},
		{"zero rate", IncomeInput{Date: "2025-03-14", VATRate: 0}, false},
		{"bad rate", IncomeInput{Date: "2025-03-14", VATRate: 16}, true},
		{"bad date", IncomeInput{Date: "14.03.2025", VATRate: 19}, true},
		{"missing date", IncomeInput{VATRate: 19}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.validate()
			if tt.wantErr {
				if !apperr.IsValidation(err) {
					t.Fatalf("validate() = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate() = %v, want nil", err)
			}
		})
	}
}

func TestIncomeInputValidateDefaultsTaxLine(t *testing.T) {
	in := IncomeInput{Date: "2025-03-14", VATRate: 19}
	if err := in.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}
	if in.TaxLine != ledger.DefaultIncomeLine {
		t.Errorf("TaxLine = %q, want %q", in.TaxLine, ledger.DefaultIncomeLine)
	}
}

func TestExpenseInputValidateBusinessMeal(t *testing.T) {
	// The caller's deductible percent is overridden for business meals.
	in := ExpenseInput{
		Date:              "2025-05-02",
		VATRate:           19,
		DeductiblePercent: decimal.NewFromInt(100),
		BusinessMeal:      true,
	}
	if err := in.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}
	want := decimal.NewFromInt(ledger.MealDeductiblePercent)
	if !in.DeductiblePercent.Equal(want) {
		t.Errorf("DeductiblePercent = %s, want %s", in.DeductiblePercent, want)
	}
}

func TestExpenseInputValidatePercentBounds(t *testing.T) {
	tests := []struct {
		name    string
		percent string
		wantErr bool
	}{
		{"zero", "0", false},
		{"partial", "41.5", false},
		{"full", "100", false},
		{"negative", "-1", true},
		{"over", "100.01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, err := decimal.NewFromString(tt.percent)
			if err != nil {
				t.Fatal(err)
			}
			in := ExpenseInput{Date: "2025-05-02", VATRate: 19, DeductiblePercent: pct}
			got := in.validate()
			if tt.wantErr != (got != nil) {
				t.Errorf("validate() = %v, wantErr %v", got, tt.wantErr)
			}
		})
	}
}

func TestExpenseInputValidateDefaultsTaxLine(t *testing.T) {
	in := ExpenseInput{Date: "2025-05-02", VATRate: 19, DeductiblePercent: decimal.NewFromInt(100)}
	if err := in.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}
	if in.TaxLine != ledger.DefaultExpenseLine {
		t.Errorf("TaxLine = %q, want %q", in.TaxLine, ledger.DefaultExpenseLine)
	}
}

func TestDepreciationInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      DepreciationInput
		wantErr bool
	}{
		{"valid", DepreciationInput{AssetName: "Laptop", Year: 2025, DepreciationAmount: decimal.NewFromInt(500)}, false},
		{"missing name", DepreciationInput{Year: 2025}, true},
		{"year too small", DepreciationInput{AssetName: "Laptop", Year: 1999}, true},
		{"negative amount", DepreciationInput{AssetName: "Laptop", Year: 2025, DepreciationAmount: decimal.NewFromInt(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.validate()
			if tt.wantErr != (err != nil) {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
