package ledger

import (
	"fmt"
	"time"
)

// Range is an inclusive span of ISO calendar days.
type Range struct {
	Start string
	End   string
}

// Contains reports whether the ISO day falls inside the range. ISO day
// strings order lexicographically, so plain string comparison is exact.
func (r Range) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}

// MonthRange returns the inclusive day range of a calendar month.
func MonthRange(year, month int) Range {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return Range{Start: isoDay(first), End: isoDay(last)}
}

// QuarterRange returns the inclusive day range of quarter q (1..4):
// the first day of month 3(q-1)+1 through the last day of month 3q.
// The four quarters partition the year with no gap or overlap.
func QuarterRange(year, q int) Range {
	firstMonth := 3*(q-1) + 1
	first := time.Date(year, time.Month(firstMonth), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 3, -1)
	return Range{Start: isoDay(first), End: isoDay(last)}
}

// YearRange returns the inclusive day range of a calendar year.
func YearRange(year int) Range {
	return Range{
		Start: fmt.Sprintf("%04d-01-01", year),
		End:   fmt.Sprintf("%04d-12-31", year),
	}
}

// QuarterOf returns the quarter (1..4) a month belongs to.
func QuarterOf(month int) int {
	return (month-1)/3 + 1
}

// ParseDay parses an ISO calendar-day string. It is the single place the
// suite accepts dates from callers.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func isoDay(t time.Time) string {
	return t.Format("2006-01-02")
}
