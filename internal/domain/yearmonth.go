package domain

import (
	"fmt"
	"time"
)

// YearMonth is a calendar-month key in "YYYY-MM" form, the aggregation
// granularity for summaries and insights.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses a "YYYY-MM" key.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, Validationf("month", "want YYYY-MM, got %q", s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Add returns the month n calendar months after ym (n may be negative).
func (ym YearMonth) Add(n int) YearMonth {
	t := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Bounds returns the half-open UTC date interval [start, next) covering ym.
func (ym YearMonth) Bounds() (start, next time.Time) {
	start = time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DateOnly truncates t to a UTC calendar date. Transaction, snapshot and
// subscription dates are day-granular everywhere in the engine.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
