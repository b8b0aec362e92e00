package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/internal/settlement"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// Workbook is one input file: client profiles plus the period data to process.
type Workbook struct {
	Clients       []domain.ClientProfile     `yaml:"clients" validate:"dive"`
	Income        []domain.IncomeInput       `yaml:"income" validate:"dive"`
	VatLines      []domain.VatLineInput      `yaml:"vat_lines" validate:"dive"`
	Transactions  []TransactionInput         `yaml:"vat_transactions" validate:"dive"`
	Closes        []CloseInput               `yaml:"vat_close" validate:"dive"`
	Contributions []domain.ContributionInput `yaml:"contributions" validate:"dive"`
}

// TransactionInput is a VAT transaction as written in a workbook.
type TransactionInput struct {
	ClientID  string              `yaml:"client_id" validate:"required"`
	Direction domain.VatDirection `yaml:"direction" validate:"required,oneof=INPUT OUTPUT BOTH"`
	Class     domain.VatClass     `yaml:"class" validate:"required"`
	RateCode  string              `yaml:"rate_code"`
	Net       money.Money         `yaml:"net"`
	Vat       money.Money         `yaml:"vat"`
	Period    string              `yaml:"period" validate:"required"`
}

// Transaction converts the workbook row to a domain transaction.
func (ti TransactionInput) Transaction() (domain.VatTransaction, error) {
	period, err := ParsePeriod(ti.Period)
	if err != nil {
		return domain.VatTransaction{}, err
	}
	return domain.VatTransaction{
		ClientID:  ti.ClientID,
		Direction: ti.Direction,
		Class:     ti.Class,
		RateCode:  ti.RateCode,
		NetAmount: ti.Net,
		VatAmount: ti.Vat,
		Period:    period,
		Status:    domain.VatTxActive,
	}, nil
}

// CloseInput asks for a VAT period close.
type CloseInput struct {
	ClientID string                `yaml:"client_id" validate:"required"`
	Period   string                `yaml:"period" validate:"required"`
	Election domain.RefundElection `yaml:"election" validate:"omitempty,oneof=CARRY_FORWARD REFUND"`
	FiledAt  time.Time             `yaml:"filed_at"`
}

// Request converts the workbook row to a batch close request.
func (ci CloseInput) Request() (settlement.CloseRequest, error) {
	period, err := ParsePeriod(ci.Period)
	if err != nil {
		return settlement.CloseRequest{}, err
	}
	return settlement.CloseRequest{ClientID: ci.ClientID, Period: period, Election: ci.Election, FiledAt: ci.FiledAt}, nil
}

// ParsePeriod reads a "YYYY-MM" period.
func ParsePeriod(s string) (dateutil.YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return dateutil.YearMonth{}, domain.InvalidInput("period", "MALFORMED_PERIOD", "period %q is not YYYY-MM", s)
	}
	return dateutil.NewYearMonth(t.Year(), int(t.Month()))
}

// InputParser handles parsing of workbook files
type InputParser struct {
	validate *validator.Validate
}

// NewInputParser creates a new input parser
func NewInputParser() *InputParser {
	return &InputParser{validate: validator.New()}
}

// LoadFromFile loads a workbook from a YAML file
func (ip *InputParser) LoadFromFile(filename string) (*Workbook, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.Parse(data)
}

// Parse decodes and validates workbook YAML.
func (ip *InputParser) Parse(data []byte) (*Workbook, error) {
	var wb Workbook
	if err := yaml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := ip.ValidateWorkbook(&wb); err != nil {
		return nil, fmt.Errorf("workbook validation failed: %w", err)
	}
	return &wb, nil
}

// ValidateWorkbook checks struct tags and cross-references between sections.
func (ip *InputParser) ValidateWorkbook(wb *Workbook) error {
	if err := ip.validate.Struct(wb); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.InvalidInput(fe.Namespace(), "VALIDATION_FAILED", "%s failed %q", fe.Namespace(), fe.Tag())
		}
		return err
	}

	known := make(map[string]bool, len(wb.Clients))
	for _, c := range wb.Clients {
		if known[c.ClientID] {
			return domain.InvalidInput("clients", "DUPLICATE_CLIENT", "client %s is listed twice", c.ClientID)
		}
		known[c.ClientID] = true
	}
	requireClient := func(section, id string) error {
		if !known[id] {
			return domain.InvalidInput(section, "UNKNOWN_CLIENT", "%s references client %s which has no profile", section, id)
		}
		return nil
	}

	for i, in := range wb.Income {
		if err := requireClient("income", in.ClientID); err != nil {
			return err
		}
		if _, err := domain.ParseRegime(string(in.Regime)); err != nil {
			return fmt.Errorf("income[%d]: %w", i, err)
		}
	}
	for i, ti := range wb.Transactions {
		if err := requireClient("vat_transactions", ti.ClientID); err != nil {
			return err
		}
		if !ti.Class.Valid() {
			return domain.InvalidInput("vat_transactions", "UNKNOWN_CLASS", "vat_transactions[%d]: unknown class %q", i, ti.Class)
		}
		if _, err := ParsePeriod(ti.Period); err != nil {
			return fmt.Errorf("vat_transactions[%d]: %w", i, err)
		}
	}
	for i, ci := range wb.Closes {
		if err := requireClient("vat_close", ci.ClientID); err != nil {
			return err
		}
		if _, err := ParsePeriod(ci.Period); err != nil {
			return fmt.Errorf("vat_close[%d]: %w", i, err)
		}
	}
	for _, c := range wb.Contributions {
		if c.ClientID == "" {
			continue
		}
		if err := requireClient("contributions", c.ClientID); err != nil {
			return err
		}
	}
	return nil
}

// CreateExampleWorkbook returns a small workbook covering every section.
func (ip *InputParser) CreateExampleWorkbook() *Workbook {
	return &Workbook{
		Clients: []domain.ClientProfile{
			{ClientID: "acme", Name: "Acme Sp. z o.o.", ActiveVATPayer: true, VATPayerVerified: true},
			{ClientID: "kowalski", Name: "Jan Kowalski", ActiveVATPayer: true},
		},
		Income: []domain.IncomeInput{
			{ClientID: "acme", TaxYear: 2024, Regime: domain.RegimeCITStandard, Revenue: money.MustMoney("1200000"), Costs: money.MustMoney("800000"), ApplyLoss: true},
			{ClientID: "kowalski", TaxYear: 2024, Regime: domain.RegimePITProgressive, Revenue: money.MustMoney("180000"), Costs: money.MustMoney("40000")},
		},
		VatLines: []domain.VatLineInput{
			{RateCode: "23", Amount: money.MustMoney("1230"), Kind: domain.AmountGross, Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		},
		Transactions: []TransactionInput{
			{ClientID: "acme", Direction: domain.VatOutput, Class: domain.ClassDomestic, RateCode: "23", Net: money.MustMoney("10000"), Vat: money.MustMoney("2300"), Period: "2024-03"},
			{ClientID: "acme", Direction: domain.VatInput, Class: domain.ClassDomestic, RateCode: "23", Net: money.MustMoney("4000"), Vat: money.MustMoney("920"), Period: "2024-03"},
		},
		Closes: []CloseInput{
			{ClientID: "acme", Period: "2024-03", Election: domain.ElectCarryForward},
		},
		Contributions: []domain.ContributionInput{
			{ClientID: "kowalski", Year: 2024, Month: 3, Kind: domain.ContributorSelfEmployed, Scheme: domain.SchemeStandard, Sickness: true},
		},
	}
}
