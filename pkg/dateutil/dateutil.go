package dateutil

import (
	"fmt"
	"time"
)

// YearMonth identifies a monthly settlement period.
type YearMonth struct {
	Year  int `yaml:"year" json:"year"`
	Month int `yaml:"month" json:"month"`
}

// NewYearMonth validates and builds a YearMonth.
func NewYearMonth(year, month int) (YearMonth, error) {
	if year < 1990 || year > 2200 {
		return YearMonth{}, fmt.Errorf("year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("month %d out of range", month)
	}
	return YearMonth{Year: year, Month: month}, nil
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// Index returns a monotonically increasing month number, handy for ordering and distances.
func (ym YearMonth) Index() int {
	return ym.Year*12 + (ym.Month - 1)
}

// String renders the period as YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// Start returns the first instant of the period.
func (ym YearMonth) Start() time.Time {
	return PeriodStart(ym.Year, ym.Month)
}

// End returns the last day of the period.
func (ym YearMonth) End() time.Time {
	return PeriodEnd(ym.Year, ym.Month)
}

// MonthsBetween returns the number of whole months from a to b (negative when b is earlier).
func MonthsBetween(a, b YearMonth) int {
	return b.Index() - a.Index()
}

// PeriodStart returns the first day of a month in UTC.
func PeriodStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the last day of a month in UTC.
func PeriodEnd(year, month int) time.Time {
	return PeriodStart(year, month).AddDate(0, 1, -1)
}

// YearEnd returns the last day of the fiscal year.
func YearEnd(year int) time.Time {
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
}

// VATFilingDeadline returns the 25th of the month following the period.
func VATFilingDeadline(ym YearMonth) time.Time {
	return PeriodStart(ym.Year, ym.Month).AddDate(0, 1, 24)
}

// AddDays adds calendar days to a date.
func AddDays(date time.Time, days int) time.Time {
	return date.AddDate(0, 0, days)
}

// IsLeapYear checks if a year is a leap year
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
