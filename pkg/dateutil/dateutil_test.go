package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewYearMonth(t *testing.T) {
	ym, err := NewYearMonth(2024, 3)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", ym.String())

	_, err = NewYearMonth(2024, 13)
	assert.Error(t, err)
	_, err = NewYearMonth(2024, 0)
	assert.Error(t, err)
	_, err = NewYearMonth(1800, 1)
	assert.Error(t, err)
}

func TestYearMonthOrdering(t *testing.T) {
	tests := []struct {
		name   string
		a, b   YearMonth
		before bool
		months int
	}{
		{"same year", YearMonth{2024, 1}, YearMonth{2024, 2}, true, 1},
		{"year boundary", YearMonth{2023, 12}, YearMonth{2024, 1}, true, 1},
		{"equal", YearMonth{2024, 5}, YearMonth{2024, 5}, false, 0},
		{"later", YearMonth{2024, 6}, YearMonth{2023, 6}, false, -12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.before, tt.a.Before(tt.b))
			assert.Equal(t, tt.months, MonthsBetween(tt.a, tt.b))
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	ym := YearMonth{Year: 2024, Month: 2}
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ym.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), ym.End())
	assert.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), PeriodEnd(2023, 2))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), YearEnd(2024))
}

func TestVATFilingDeadline(t *testing.T) {
	assert.Equal(t, time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC), VATFilingDeadline(YearMonth{2024, 3}))
	assert.Equal(t, time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC), VATFilingDeadline(YearMonth{2024, 12}))
}

func TestAddDaysAndLeapYears(t *testing.T) {
	base := time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 24, 0, 0, 0, 0, time.UTC), AddDays(base, 60))
	assert.True(t, IsLeapYear(2024))
	assert.False(t, IsLeapYear(1900))
	assert.True(t, IsLeapYear(2000))
}
