package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// CSVFormatter writes one row per declaration, settlement, contribution and failure.
type CSVFormatter struct{}

func (c CSVFormatter) Name() string { return "csv" }

var csvHeader = []string{"Section", "Client", "Period", "Subject", "Status", "Base", "Due", "Refund", "CarryForward"}

func (c CSVFormatter) Format(r *Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	var rows [][]string
	for _, d := range r.Declarations {
		rows = append(rows, []string{
			"income", d.ClientID, FormatPeriod(d.TaxYear, d.Period), string(d.Method), string(d.Status),
			d.TaxableIncome.String(), d.TaxDue.String(), "", "",
		})
	}
	for _, l := range r.VatLines {
		rows = append(rows, []string{
			"vat_line", "", "", l.Result.RateCode, "",
			l.Result.Amounts.Net.String(), l.Result.Amounts.Vat.String(), "", "",
		})
	}
	for _, st := range r.Settlements {
		status := "v" + strconv.Itoa(st.Version)
		if st.Superseded {
			status += " superseded"
		}
		rows = append(rows, []string{
			"vat", st.ClientID, st.Period.String(), string(st.Result.Election), status,
			st.Result.Difference.String(), st.Result.VatDue.String(), st.Result.RefundRequested.String(), st.Result.NewCarryForward.String(),
		})
	}
	for _, cb := range r.Contributions {
		rows = append(rows, []string{
			"zus", cb.ClientID, FormatPeriod(cb.Year, cb.Month), string(cb.Result.Kind), string(cb.Result.Scheme),
			cb.Result.Base.String(), cb.Result.Total.String(), "", "",
		})
	}
	for _, f := range r.Failures {
		rows = append(rows, []string{"failure", "", "", f.Subject, f.Code, "", "", "", ""})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
