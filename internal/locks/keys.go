// Package locks implements GoBD Festschreibung: once an accounting period
// is locked, every mutation of a record dated inside it is rejected until
// the period is explicitly, audibly unlocked.
package locks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
)

// PeriodType is the granularity of a lock.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// ValidateKey checks that key has the exact format required for its period
// type: YYYY-MM for months, YYYY-Qn for quarters, YYYY for years.
func ValidateKey(ptype PeriodType, key string) error {
	switch ptype {
	case PeriodMonth:
		parts := strings.SplitN(key, "-", 2)
		if len(parts) != 2 || !validYear(parts[0]) {
			return apperr.Validation("invalid month key %q: expected YYYY-MM", key)
		}
		if len(parts[1]) != 2 {
			return apperr.Validation("invalid month key %q: expected YYYY-MM", key)
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil || m < 1 || m > 12 {
			return apperr.Validation("invalid month key %q: month must be 01-12", key)
		}
	case PeriodQuarter:
		parts := strings.SplitN(key, "-Q", 2)
		if len(parts) != 2 || !validYear(parts[0]) {
			return apperr.Validation("invalid quarter key %q: expected YYYY-Qn", key)
		}
		q, err := strconv.Atoi(parts[1])
		if err != nil || len(parts[1]) != 1 || q < 1 || q > 4 {
			return apperr.Validation("invalid quarter key %q: quarter must be 1-4", key)
		}
	case PeriodYear:
		if !validYear(key) {
			return apperr.Validation("invalid year key %q: expected YYYY", key)
		}
	default:
		return apperr.Validation("unknown period type %q", ptype)
	}
	return nil
}

// KeysForDate derives the month, quarter and year keys an ISO calendar day
// belongs to. A write to that day is blocked if any of the three is locked.
func KeysForDate(date string) ([]string, error) {
	t, err := ledger.ParseDay(date)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	year, month := t.Year(), int(t.Month())
	return []string{
		fmt.Sprintf("%04d-%02d", year, month),
		fmt.Sprintf("%04d-Q%d", year, ledger.QuarterOf(month)),
		fmt.Sprintf("%04d", year),
	}, nil
}

func validYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	y, err := strconv.Atoi(s)
	return err == nil && y >= 2000 && y <= 2100
}
