package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltax/settlement-engine/internal/output"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func exampleWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workbook.yaml")
	_, err := execute(t, "example", path)
	require.NoError(t, err)
	return path
}

func TestExampleAndValidate(t *testing.T) {
	path := exampleWorkbook(t)
	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Workbook OK: 2 clients, 2 income, 1 VAT lines, 2 VAT transactions, 1 closes, 1 contributions")
}

func TestRunExampleWorkbookAsJSON(t *testing.T) {
	path := exampleWorkbook(t)
	out, err := execute(t, "run", path, "--format", "json", "--submit")
	require.NoError(t, err)

	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Failures)
	require.Len(t, report.Declarations, 2)
	assert.Equal(t, "SUBMITTED", string(report.Declarations[0].Status))
	require.Len(t, report.VatLines, 1)
	assert.Equal(t, "230.00", report.VatLines[0].Result.Amounts.Vat.String())
	require.Len(t, report.Settlements, 1)
	assert.Equal(t, "1380.00", report.Settlements[0].Result.VatDue.String())
	require.Len(t, report.Contributions, 1)
	assert.NotEmpty(t, report.CatalogVersion)
}

func TestRunRecordsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`clients:
  - client_id: acme
income:
  - client_id: acme
    tax_year: 2024
    regime: CIT_SMALL
    revenue: "1000"
`), 0644))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 item(s) failed")
	assert.Contains(t, out, "FAILURES")
	assert.Contains(t, out, "acme income 2024")
}

func TestRunWritesReportFiles(t *testing.T) {
	path := exampleWorkbook(t)
	dir := t.TempDir()
	out, err := execute(t, "run", path, "--format", "all", "--output-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written to")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(output.AvailableFormatterNames()))
}

func TestRatesCommand(t *testing.T) {
	out, err := execute(t, "rates", "--tax", "pit", "--as-of", "2024-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "PIT rates as of 2024-06-01")
	assert.Contains(t, out, "FLAT")
	assert.Contains(t, out, "Brackets:")
	assert.Contains(t, out, "32%")

	_, err = execute(t, "rates", "--as-of", "June")
	assert.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	path := exampleWorkbook(t)
	_, err := execute(t, "run", path, "--format", "pdf")
	assert.ErrorIs(t, err, output.ErrUnsupportedFormat)
}

func TestSectionCommandsProcessOnlyTheirSections(t *testing.T) {
	path := exampleWorkbook(t)

	out, err := execute(t, "close", path, "--format", "json")
	require.NoError(t, err)
	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Declarations)
	assert.Empty(t, report.Contributions)
	require.Len(t, report.Settlements, 1)

	out, err = execute(t, "zus", path, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "zus,kowalski,2024-03,SELF_EMPLOYED,STANDARD")
	assert.NotContains(t, out, "income,")

	_, err = execute(t, "zus", path, "--submit")
	assert.Error(t, err, "--submit is only defined for income commands")
}
