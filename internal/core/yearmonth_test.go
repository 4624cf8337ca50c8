package core

import (
	"testing"
	"time"
)

func TestYearMonthAddMonths(t *testing.T) {
	tests := []struct {
		name string
		from YearMonth
		n    int
		want YearMonth
	}{
		{"same year", YearMonth{2024, time.January}, 3, YearMonth{2024, time.April}},
		{"year rollover", YearMonth{2024, time.November}, 2, YearMonth{2025, time.January}},
		{"three years", YearMonth{2024, time.January}, 36, YearMonth{2027, time.January}},
		{"backwards", YearMonth{2024, time.January}, -1, YearMonth{2023, time.December}},
		{"backwards many", YearMonth{2024, time.March}, -27, YearMonth{2021, time.December}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.AddMonths(tt.n); got != tt.want {
				t.Errorf("AddMonths(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestYearMonthDayClamps(t *testing.T) {
	got := YearMonth{2024, time.February}.Day(31)
	if got.Day() != 29 {
		t.Fatalf("expected clamp to 29, got %d", got.Day())
	}
	if YearMonth{2024, time.March}.MonthsUntil(YearMonth{2025, time.March}) != 12 {
		t.Fatal("expected 12 months")
	}
}
