package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

const validWorkbook = `clients:
  - client_id: acme
    name: "Acme Sp. z o.o."
    active_vat_payer: true
    vat_payer_verified: true
  - client_id: kowalski
    active_vat_payer: true

income:
  - client_id: acme
    tax_year: 2024
    regime: CIT_STANDARD
    revenue: "1200000"
    costs: 800000.50
    apply_loss: true

vat_lines:
  - rate_code: "23"
    amount: "1230"
    kind: GROSS
    date: 2024-03-15T00:00:00Z
    currency: EUR
    exchange_rate: "4.3210"

vat_transactions:
  - client_id: acme
    direction: OUTPUT
    class: DOMESTIC
    rate_code: "23"
    net: "10000"
    vat: "2300"
    period: "2024-03"

vat_close:
  - client_id: acme
    period: "2024-03"
    election: REFUND

contributions:
  - client_id: kowalski
    year: 2024
    month: 3
    kind: SELF_EMPLOYED
    scheme: STANDARD
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "workbook_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestNewInputParser(t *testing.T) {
	parser := NewInputParser()
	assert.NotNil(t, parser)
}

func TestLoadFromFile_Success(t *testing.T) {
	parser := NewInputParser()
	wb, err := parser.LoadFromFile(writeTemp(t, validWorkbook))
	require.NoError(t, err)

	require.Len(t, wb.Clients, 2)
	assert.True(t, wb.Clients[0].VATPayerVerified)

	require.Len(t, wb.Income, 1)
	assert.Equal(t, domain.RegimeCITStandard, wb.Income[0].Regime)
	assert.Equal(t, "800000.50", wb.Income[0].Costs.String())

	require.Len(t, wb.VatLines, 1)
	assert.Equal(t, "4.321", wb.VatLines[0].ExchangeRate.String())
	assert.Equal(t, 2024, wb.VatLines[0].Date.Year())

	require.Len(t, wb.Transactions, 1)
	tx, err := wb.Transactions[0].Transaction()
	require.NoError(t, err)
	assert.Equal(t, dateutil.YearMonth{Year: 2024, Month: 3}, tx.Period)
	assert.Equal(t, domain.VatTxActive, tx.Status)
	assert.Equal(t, "2300.00", tx.VatAmount.String())

	require.Len(t, wb.Closes, 1)
	req, err := wb.Closes[0].Request()
	require.NoError(t, err)
	assert.Equal(t, domain.ElectRefund, req.Election)
	assert.Equal(t, "acme", req.ClientID)

	require.Len(t, wb.Contributions, 1)
	assert.Equal(t, domain.ContributorSelfEmployed, wb.Contributions[0].Kind)
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	parser := NewInputParser()
	_, err := parser.LoadFromFile("nonexistent_workbook.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	parser := NewInputParser()
	_, err := parser.LoadFromFile(writeTemp(t, "clients: [\n  - client_id: acme\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_BadAmount(t *testing.T) {
	parser := NewInputParser()
	_, err := parser.Parse([]byte("clients:\n  - client_id: acme\nincome:\n  - client_id: acme\n    tax_year: 2024\n    regime: PIT_FLAT\n    revenue: lots\n"))
	require.Error(t, err)
}

func TestValidateWorkbook(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(wb *Workbook)
		field string
		code  string
	}{
		{
			name:  "tag violation",
			edit:  func(wb *Workbook) { wb.Income[0].TaxYear = 1999 },
			field: "Workbook.Income[0].TaxYear",
			code:  "VALIDATION_FAILED",
		},
		{
			name:  "bad direction",
			edit:  func(wb *Workbook) { wb.Transactions[0].Direction = "SIDEWAYS" },
			field: "Workbook.Transactions[0].Direction",
			code:  "VALIDATION_FAILED",
		},
		{
			name:  "duplicate client",
			edit:  func(wb *Workbook) { wb.Clients = append(wb.Clients, wb.Clients[0]) },
			field: "clients",
			code:  "DUPLICATE_CLIENT",
		},
		{
			name:  "income for unknown client",
			edit:  func(wb *Workbook) { wb.Income[0].ClientID = "nobody" },
			field: "income",
			code:  "UNKNOWN_CLIENT",
		},
		{
			name:  "unknown regime",
			edit:  func(wb *Workbook) { wb.Income[0].Regime = "CIT_MAGIC" },
			field: "regime",
			code:  "UNKNOWN_REGIME",
		},
		{
			name:  "unknown class",
			edit:  func(wb *Workbook) { wb.Transactions[0].Class = "BARTER" },
			field: "vat_transactions",
			code:  "UNKNOWN_CLASS",
		},
		{
			name:  "malformed period",
			edit:  func(wb *Workbook) { wb.Closes[0].Period = "03/2024" },
			field: "period",
			code:  "MALFORMED_PERIOD",
		},
		{
			name:  "contribution for unknown client",
			edit:  func(wb *Workbook) { wb.Contributions[0].ClientID = "nobody" },
			field: "contributions",
			code:  "UNKNOWN_CLIENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewInputParser()
			wb := parser.CreateExampleWorkbook()
			tt.edit(wb)
			err := parser.ValidateWorkbook(wb)
			var derr *domain.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.field, derr.Field)
			assert.Equal(t, tt.code, derr.Code)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestValidateWorkbook_AnonymousContribution(t *testing.T) {
	parser := NewInputParser()
	wb := parser.CreateExampleWorkbook()
	wb.Contributions[0].ClientID = ""
	assert.NoError(t, parser.ValidateWorkbook(wb))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-11")
	require.NoError(t, err)
	assert.Equal(t, dateutil.YearMonth{Year: 2024, Month: 11}, p)

	for _, bad := range []string{"", "2024", "2024-13", "1980-01"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}

func TestCreateExampleWorkbook(t *testing.T) {
	parser := NewInputParser()
	wb := parser.CreateExampleWorkbook()
	require.NoError(t, parser.ValidateWorkbook(wb))

	data, err := yaml.Marshal(wb)
	require.NoError(t, err)
	back, err := parser.Parse(data)
	require.NoError(t, err)
	assert.Len(t, back.Transactions, len(wb.Transactions))
	assert.Equal(t, wb.Income[0].Revenue.String(), back.Income[0].Revenue.String())
}
