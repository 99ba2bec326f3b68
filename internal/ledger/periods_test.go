package ledger

import "testing"

func TestQuarterRange_PartitionsYear(t *testing.T) {
	want := []Range{
		{Start: "2025-01-01", End: "2025-03-31"},
		{Start: "2025-04-01", End: "2025-06-30"},
		{Start: "2025-07-01", End: "2025-09-30"},
		{Start: "2025-10-01", End: "2025-12-31"},
	}

	for q := 1; q <= 4; q++ {
		got := QuarterRange(2025, q)
		if got != want[q-1] {
			t.Errorf("QuarterRange(2025, %d) = %+v, want %+v", q, got, want[q-1])
		}
	}

	// Adjacent quarters must neither gap nor overlap.
	for q := 1; q < 4; q++ {
		end := QuarterRange(2025, q).End
		next := QuarterRange(2025, q+1).Start
		if !(end < next) {
			t.Errorf("quarter %d end %s not strictly before quarter %d start %s", q, end, q+1, next)
		}
	}
}

func TestQuarterRange_LeapYear(t *testing.T) {
	got := QuarterRange(2024, 1)
	if got.End != "2024-03-31" {
		t.Errorf("Q1 2024 end = %s, want 2024-03-31", got.End)
	}
	feb := MonthRange(2024, 2)
	if feb.End != "2024-02-29" {
		t.Errorf("Feb 2024 end = %s, want 2024-02-29", feb.End)
	}
}

func TestRange_BoundaryDatesBelongToExactlyOneQuarter(t *testing.T) {
	boundaries := []string{
		"2025-01-01", "2025-03-31", "2025-04-01", "2025-06-30",
		"2025-07-01", "2025-09-30", "2025-10-01", "2025-12-31",
	}
	for _, date := range boundaries {
		count := 0
		for q := 1; q <= 4; q++ {
			if QuarterRange(2025, q).Contains(date) {
				count++
			}
		}
		if count != 1 {
			t.Errorf("date %s belongs to %d quarters, want exactly 1", date, count)
		}
	}
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		year, month int
		want        Range
	}{
		{2025, 1, Range{"2025-01-01", "2025-01-31"}},
		{2025, 4, Range{"2025-04-01", "2025-04-30"}},
		{2025, 12, Range{"2025-12-01", "2025-12-31"}},
	}
	for _, tt := range tests {
		if got := MonthRange(tt.year, tt.month); got != tt.want {
			t.Errorf("MonthRange(%d, %d) = %+v, want %+v", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestQuarterOf(t *testing.T) {
	byMonth := map[int]int{1: 1, 2: 1, 3: 1, 4: 2, 6: 2, 7: 3, 9: 3, 10: 4, 12: 4}
	for month, want := range byMonth {
		if got := QuarterOf(month); got != want {
			t.Errorf("QuarterOf(%d) = %d, want %d", month, got, want)
		}
	}
}

func TestParseDay(t *testing.T) {
	if _, err := ParseDay("2025-02-30"); err == nil {
		t.Error("expected error for impossible date")
	}
	if _, err := ParseDay("01.02.2025"); err == nil {
		t.Error("expected error for non-ISO format")
	}
	if _, err := ParseDay("2025-02-28"); err != nil {
		t.Errorf("unexpected error for valid date: %v", err)
	}
}
