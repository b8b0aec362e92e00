package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

func m(s string) money.Money { return money.MustMoney(s) }

func buildTestReport() *Report {
	r := NewReport("Monthly close", time.Date(2024, 4, 25, 9, 30, 0, 0, time.UTC))
	r.CatalogVersion = "seed-2024"
	r.Declarations = []*domain.Declaration{
		{ID: uuid.New(), ClientID: "acme", TaxType: domain.TaxCIT, TaxYear: 2023, Method: domain.RegimeCITStandard,
			TaxableIncome: m("400000"), TaxDue: m("76000"), LossApplied: m("20000"), Status: domain.DeclarationSubmitted},
	}
	r.VatLines = []VatLine{{
		Input: domain.VatLineInput{RateCode: "23", Amount: m("1230"), Kind: domain.AmountGross},
		Result: &domain.VatLineResult{RateCode: "23", Rate: decimal.RequireFromString("0.23"), Currency: "PLN",
			Amounts: domain.VatAmounts{Net: m("1000"), Vat: m("230"), Gross: m("1230")}},
	}}
	r.Settlements = []*domain.VatSettlement{
		{ID: uuid.New(), ClientID: "acme", Period: dateutil.YearMonth{Year: 2024, Month: 3}, Version: 1, Superseded: true,
			Result: domain.VatSettlementResult{VatDue: m("900")}},
		{ID: uuid.New(), ClientID: "acme", Period: dateutil.YearMonth{Year: 2024, Month: 3}, Version: 2,
			Result: domain.VatSettlementResult{VatDue: m("1380"), Difference: m("1380")}},
	}
	r.Contributions = []Contribution{{
		ClientID: "kowalski", Year: 2024, Month: 3,
		Result: &domain.ContributionResult{Kind: domain.ContributorSelfEmployed, Scheme: domain.SchemeStandard,
			Base: m("4694.40"), Total: m("1600.32"),
			Lines: []domain.ContributionLine{{Code: domain.ContribPension, Employee: m("916.35")}}},
	}}
	r.AddFailure("beta 2024-03", domain.NotFound("PROFILE_NOT_FOUND", "no profile for client %s", "beta"))
	return r
}

func TestConsoleFormatter(t *testing.T) {
	out, err := ConsoleFormatter{}.Format(buildTestReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := string(out)
	for _, want := range []string{"MONTHLY CLOSE", "INCOME TAX", "acme CIT_STANDARD 2023 [SUBMITTED]", "VAT SETTLEMENTS",
		"2024-03 v1 (superseded)", "ZUS CONTRIBUTIONS", "FAILURES", "beta 2024-03", "TOTALS"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in console output, got:\n%s", want, content)
		}
	}
}

func TestCSVFormatterRows(t *testing.T) {
	out, err := CSVFormatter{}.Format(buildTestReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	// header + declaration + vat line + 2 settlements + contribution + failure
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "income,acme,2023,CIT_STANDARD,SUBMITTED,400000.00,76000.00") {
		t.Fatalf("unexpected declaration row %q", lines[1])
	}
	if !strings.Contains(lines[3], "v1 superseded") {
		t.Fatalf("superseded settlement not marked: %q", lines[3])
	}
	if !strings.HasPrefix(lines[6], "failure,,,beta 2024-03,PROFILE_NOT_FOUND") {
		t.Fatalf("unexpected failure row %q", lines[6])
	}
}

func TestJSONFormatter(t *testing.T) {
	out, err := JSONFormatter{}.Format(buildTestReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct {
		Title       string    `json:"title"`
		Settlements []any     `json:"settlements"`
		Failures    []Failure `json:"failures"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Title != "Monthly close" || len(decoded.Settlements) != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
	if len(decoded.Failures) != 1 || decoded.Failures[0].Kind != domain.KindNotFound {
		t.Fatalf("failure kind lost: %+v", decoded.Failures)
	}
}

func TestHTMLFormatter(t *testing.T) {
	out, err := HTMLFormatter{}.Format(buildTestReport())
	if err != nil {
		t.Fatalf("html format error: %v", err)
	}
	content := string(out)
	for _, want := range []string{"<h1>Monthly close</h1>", "Income Tax", "VAT Settlements", `class="superseded"`, "Key Assumptions", "catalog seed-2024"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in HTML output", want)
		}
	}
	if !strings.Contains(content, DefaultAssumptions[0]) {
		t.Fatalf("expected default assumptions to be rendered in HTML")
	}
}

func TestFormatterAliasResolution(t *testing.T) {
	f := GetFormatterByName(" TEXT ")
	if f == nil {
		t.Fatalf("alias text did not resolve to a formatter")
	}
	if f.Name() != "console" {
		t.Fatalf("alias resolved to %q, want 'console'", f.Name())
	}
	if GetFormatterByName("pdf") != nil {
		t.Fatalf("pdf should not resolve")
	}
}

func TestRenderUnknownFormatIncludesSuggestions(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, buildTestReport(), "definitely-not-a-format")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !strings.Contains(err.Error(), "Try one of: console, csv, html, json") {
		t.Fatalf("error message missing suggestions: %s", err)
	}
}

func TestGenerateReportWritesFiles(t *testing.T) {
	dir := t.TempDir()
	files, err := GenerateReport(buildTestReport(), "all", dir)
	if err != nil {
		t.Fatalf("GenerateReport all: %v", err)
	}
	if len(files) != len(AvailableFormatterNames()) {
		t.Fatalf("expected one file per formatter, got %v", files)
	}
	want := filepath.Join(dir, "tax_report_20240425_093000.txt")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("console report missing: %v", err)
	}

	files, err = GenerateReport(buildTestReport(), "json-pretty", dir)
	if err != nil || len(files) != 1 || !strings.HasSuffix(files[0], ".json") {
		t.Fatalf("unexpected json generation result %v, %v", files, err)
	}
}
