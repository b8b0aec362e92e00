package output

import "fmt"

// DefaultAssumptions lists the calculation conventions rendered in detailed outputs.
var DefaultAssumptions = []string{
	"Amounts are rounded half-up to the grosz on every line",
	"Income tax due is rounded to whole złoty",
	"Loss offsets draw on the oldest unexpired loss first",
	"VAT credits are applied oldest first and never exceed the period's liability",
}

// GenerateAssumptions appends run-specific notes to the defaults.
func GenerateAssumptions(r *Report) []string {
	out := append([]string(nil), DefaultAssumptions...)
	if r.CatalogVersion != "" {
		out = append(out, fmt.Sprintf("Rates and thresholds from catalog %s", r.CatalogVersion))
	}
	return out
}
