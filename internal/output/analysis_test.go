package output

import "testing"

func TestSummarizeSkipsSupersededSettlements(t *testing.T) {
	s := Summarize(buildTestReport())
	if got := s.VatDue.String(); got != "1380.00" {
		t.Fatalf("VatDue = %s, want 1380.00", got)
	}
	if got := s.IncomeTaxDue.String(); got != "76000.00" {
		t.Fatalf("IncomeTaxDue = %s", got)
	}
	if got := s.ContributionsTotal.String(); got != "1600.32" {
		t.Fatalf("ContributionsTotal = %s", got)
	}
	if s.Failures != 1 {
		t.Fatalf("Failures = %d, want 1", s.Failures)
	}
	if len(s.Clients) != 2 || s.Clients[0] != "acme" || s.Clients[1] != "kowalski" {
		t.Fatalf("Clients = %v", s.Clients)
	}
}

func TestSummarizeEmptyReport(t *testing.T) {
	r := NewReport("", buildTestReport().GeneratedAt)
	if !r.Empty() {
		t.Fatalf("new report should be empty")
	}
	s := Summarize(r)
	if !s.IncomeTaxDue.IsZero() || !s.VatDue.IsZero() || len(s.Clients) != 0 {
		t.Fatalf("unexpected summary for empty report: %+v", s)
	}
}
