package locks

import (
	"testing"

	"github.com/steuerkern/api/internal/apperr"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		ptype PeriodType
		key   string
		ok    bool
	}{
		{PeriodMonth, "2025-01", true},
		{PeriodMonth, "2025-12", true},
		{PeriodMonth, "2025-13", false},
		{PeriodMonth, "2025-00", false},
		{PeriodMonth, "2025-1", false},
		{PeriodMonth, "2025-Q1", false},
		{PeriodMonth, "25-01", false},
		{PeriodQuarter, "2025-Q1", true},
		{PeriodQuarter, "2025-Q4", true},
		{PeriodQuarter, "2025-Q5", false},
		{PeriodQuarter, "2025-Q0", false},
		{PeriodQuarter, "2025-Q11", false},
		{PeriodQuarter, "2025-01", false},
		{PeriodYear, "2025", true},
		{PeriodYear, "25", false},
		{PeriodYear, "2025-01", false},
		{PeriodType("week"), "2025-W01", false},
	}

	for _, tt := range tests {
		err := ValidateKey(tt.ptype, tt.key)
		if tt.ok && err != nil {
			t.Errorf("ValidateKey(%s, %q) = %v, want nil", tt.ptype, tt.key, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ValidateKey(%s, %q) = nil, want error", tt.ptype, tt.key)
			} else if !apperr.IsValidation(err) {
				t.Errorf("ValidateKey(%s, %q) returned %T, want ValidationError", tt.ptype, tt.key, err)
			}
		}
	}
}

func TestKeysForDate(t *testing.T) {
	keys, err := KeysForDate("2025-02-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2025-02", "2025-Q1", "2025"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestKeysForDate_QuarterBoundaries(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-03-31", "2025-Q1"},
		{"2025-04-01", "2025-Q2"},
		{"2025-09-30", "2025-Q3"},
		{"2025-10-01", "2025-Q4"},
	}
	for _, tt := range tests {
		keys, err := KeysForDate(tt.date)
		if err != nil {
			t.Fatalf("KeysForDate(%s): %v", tt.date, err)
		}
		if keys[1] != tt.want {
			t.Errorf("quarter key for %s = %s, want %s", tt.date, keys[1], tt.want)
		}
	}
}

func TestKeysForDate_RejectsMalformedDate(t *testing.T) {
	if _, err := KeysForDate("31.03.2025"); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
