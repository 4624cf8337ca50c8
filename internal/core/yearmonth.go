package core

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YM returns the month containing t.
func YM(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// AddMonths moves n months forward (or backward when n is negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	idx := ym.index() + n
	return YearMonth{Year: floorDiv(idx, 12), Month: time.Month(idx - floorDiv(idx, 12)*12 + 1)}
}

func (ym YearMonth) Next() YearMonth { return ym.AddMonths(1) }

func (ym YearMonth) Prev() YearMonth { return ym.AddMonths(-1) }

func (ym YearMonth) Before(o YearMonth) bool { return ym.index() < o.index() }

func (ym YearMonth) After(o YearMonth) bool { return ym.index() > o.index() }

// MonthsUntil returns how many months separate ym from o (o - ym).
func (ym YearMonth) MonthsUntil(o YearMonth) int { return o.index() - ym.index() }

// Day returns the date of the given day in this month, clamped to the
// month's last day.
func (ym YearMonth) Day(day int) time.Time {
	last := time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) Valid() bool {
	return ym.Month >= time.January && ym.Month <= time.December
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) index() int {
	return ym.Year*12 + int(ym.Month) - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
