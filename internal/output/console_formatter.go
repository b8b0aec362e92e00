package output

import (
	"bytes"
	"fmt"
	"strings"
)

// ConsoleFormatter renders a plain-text summary for terminals.
type ConsoleFormatter struct{}

func (c ConsoleFormatter) Name() string { return "console" }

func (c ConsoleFormatter) Format(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	title := strings.ToUpper(r.Title)
	if title == "" {
		title = "TAX SETTLEMENT REPORT"
	}
	fmt.Fprintln(&buf, title)
	fmt.Fprintln(&buf, strings.Repeat("=", len(title)))
	fmt.Fprintf(&buf, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04"))
	if r.CatalogVersion != "" {
		fmt.Fprintf(&buf, "Catalog:   %s\n", r.CatalogVersion)
	}

	if len(r.Declarations) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "INCOME TAX")
		for _, d := range r.Declarations {
			fmt.Fprintf(&buf, "  %s %s %s [%s]", d.ClientID, d.Method, FormatPeriod(d.TaxYear, d.Period), d.Status)
			if d.CorrectionNumber > 0 {
				fmt.Fprintf(&buf, " correction #%d", d.CorrectionNumber)
			}
			fmt.Fprintln(&buf)
			fmt.Fprintf(&buf, "    Taxable income: %s  Tax due: %s\n", FormatCurrency(d.TaxableIncome), FormatCurrency(d.TaxDue))
			if !d.LossApplied.IsZero() || !d.LossIncurred.IsZero() {
				fmt.Fprintf(&buf, "    Loss applied: %s  Loss incurred: %s\n", FormatCurrency(d.LossApplied), FormatCurrency(d.LossIncurred))
			}
			if d.Result != nil && d.Result.Surcharge.IsPositive() {
				fmt.Fprintf(&buf, "    Solidarity surcharge: %s\n", FormatCurrency(d.Result.Surcharge))
			}
		}
	}

	if len(r.VatLines) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "VAT LINES")
		for _, l := range r.VatLines {
			a := l.Result.Amounts
			fmt.Fprintf(&buf, "  %-6s %s net %s vat %s gross %s", l.Result.RateCode, FormatPercentage(l.Result.Rate),
				FormatCurrency(a.Net), FormatCurrency(a.Vat), FormatCurrency(a.Gross))
			if l.Result.PLN != nil {
				fmt.Fprintf(&buf, " (%s, PLN vat %s)", l.Result.Currency, FormatCurrency(l.Result.PLN.Vat))
			}
			fmt.Fprintln(&buf)
		}
	}

	if len(r.Settlements) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "VAT SETTLEMENTS")
		for _, st := range r.Settlements {
			res := st.Result
			fmt.Fprintf(&buf, "  %s %s v%d", st.ClientID, st.Period, st.Version)
			if st.Superseded {
				fmt.Fprint(&buf, " (superseded)")
			}
			fmt.Fprintln(&buf)
			fmt.Fprintf(&buf, "    Output: %s  Input: %s  Credit used: %s\n",
				FormatCurrency(res.Output.TotalVat), FormatCurrency(res.Input.TotalVat), FormatCurrency(res.CarryForwardTotal))
			switch {
			case res.VatDue.IsPositive():
				fmt.Fprintf(&buf, "    Due: %s\n", FormatCurrency(res.VatDue))
			case res.VatRefund.IsPositive():
				fmt.Fprintf(&buf, "    Excess: %s  Refund: %s  Carried forward: %s\n",
					FormatCurrency(res.VatRefund), FormatCurrency(res.RefundRequested), FormatCurrency(res.NewCarryForward))
			default:
				fmt.Fprintln(&buf, "    Nothing due")
			}
		}
	}

	if len(r.Contributions) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "ZUS CONTRIBUTIONS")
		for _, c := range r.Contributions {
			res := c.Result
			fmt.Fprintf(&buf, "  %s %d-%02d %s", c.ClientID, c.Year, c.Month, res.Kind)
			if res.Scheme != "" {
				fmt.Fprintf(&buf, "/%s", res.Scheme)
			}
			fmt.Fprintf(&buf, " base %s\n", FormatCurrency(res.Base))
			for _, line := range res.Lines {
				fmt.Fprintf(&buf, "    %-12s employee %s employer %s\n", line.Code, FormatCurrency(line.Employee), FormatCurrency(line.Employer))
			}
			fmt.Fprintf(&buf, "    Total: %s\n", FormatCurrency(res.Total))
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "FAILURES")
		for _, f := range r.Failures {
			fmt.Fprintf(&buf, "  %s: %s\n", f.Subject, f.Message)
		}
	}

	s := Summarize(r)
	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "TOTALS")
	fmt.Fprintf(&buf, "  Income tax due: %s\n", FormatCurrency(s.IncomeTaxDue))
	fmt.Fprintf(&buf, "  VAT due:        %s\n", FormatCurrency(s.VatDue))
	fmt.Fprintf(&buf, "  VAT excess:     %s\n", FormatCurrency(s.VatRefund))
	fmt.Fprintf(&buf, "  Contributions:  %s\n", FormatCurrency(s.ContributionsTotal))
	return buf.Bytes(), nil
}
