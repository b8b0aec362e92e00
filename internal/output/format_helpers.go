package output

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

var plPrinter = message.NewPrinter(language.Polish)

// FormatCurrency formats an amount in złoty with Polish digit grouping and a decimal comma.
func FormatCurrency(amount money.Money) string {
	r := amount.Round()
	whole := r.Decimal.Truncate(0)
	grosze := r.Decimal.Sub(whole).Abs().Shift(2).IntPart()
	sign := ""
	if r.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s,%02d zł", sign, plPrinter.Sprintf("%d", whole.Abs().IntPart()), grosze)
}

// FormatPercentage renders a fractional rate (0.19) as a percentage (19%).
func FormatPercentage(rate decimal.Decimal) string {
	return strings.Replace(rate.Shift(2).String(), ".", ",", 1) + "%"
}

// FormatPeriod renders a declaration period: annual returns have period 0.
func FormatPeriod(year, period int) string {
	if period == 0 {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("%d-%02d", year, period)
}
