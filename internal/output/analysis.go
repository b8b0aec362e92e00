package output

import (
	"sort"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// Summary totals a report's liabilities.
type Summary struct {
	IncomeTaxDue       money.Money
	LossApplied        money.Money
	LossIncurred       money.Money
	VatDue             money.Money
	VatRefund          money.Money
	NewCarryForward    money.Money
	ContributionsTotal money.Money
	Clients            []string
	Failures           int
}

// Summarize aggregates the report. Superseded settlements are skipped.
func Summarize(r *Report) Summary {
	s := Summary{
		IncomeTaxDue:       money.Zero(),
		LossApplied:        money.Zero(),
		LossIncurred:       money.Zero(),
		VatDue:             money.Zero(),
		VatRefund:          money.Zero(),
		NewCarryForward:    money.Zero(),
		ContributionsTotal: money.Zero(),
		Failures:           len(r.Failures),
	}
	clients := map[string]bool{}
	for _, d := range r.Declarations {
		s.IncomeTaxDue = s.IncomeTaxDue.Add(d.TaxDue)
		s.LossApplied = s.LossApplied.Add(d.LossApplied)
		s.LossIncurred = s.LossIncurred.Add(d.LossIncurred)
		clients[d.ClientID] = true
	}
	for _, st := range r.Settlements {
		if st.Superseded {
			continue
		}
		s.VatDue = s.VatDue.Add(st.Result.VatDue)
		s.VatRefund = s.VatRefund.Add(st.Result.VatRefund)
		s.NewCarryForward = s.NewCarryForward.Add(st.Result.NewCarryForward)
		clients[st.ClientID] = true
	}
	for _, c := range r.Contributions {
		s.ContributionsTotal = s.ContributionsTotal.Add(c.Result.Total)
		if c.ClientID != "" {
			clients[c.ClientID] = true
		}
	}
	for id := range clients {
		s.Clients = append(s.Clients, id)
	}
	sort.Strings(s.Clients)
	return s
}
