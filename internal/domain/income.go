package domain

import (
	"time"

	"github.com/shopspring/decimal"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// Regime selects the income-tax method. Regimes are chosen explicitly and never inferred.
type Regime string

const (
	RegimeCITStandard    Regime = "CIT_STANDARD"
	RegimeCITSmall       Regime = "CIT_SMALL"
	RegimeCITEstonian    Regime = "CIT_ESTONIAN"
	RegimePITProgressive Regime = "PIT_PROGRESSIVE"
	RegimePITFlat        Regime = "PIT_FLAT"
	RegimePITLumpSum     Regime = "PIT_LUMP_SUM"
)

// ParseRegime maps a user-supplied code to a Regime.
func ParseRegime(code string) (Regime, error) {
	r := Regime(code)
	switch r {
	case RegimeCITStandard, RegimeCITSmall, RegimeCITEstonian,
		RegimePITProgressive, RegimePITFlat, RegimePITLumpSum:
		return r, nil
	}
	return "", InvalidInput("regime", "UNKNOWN_REGIME", "unknown tax regime %q", code)
}

// TaxType returns the tax family whose catalog and loss ledger the regime uses.
func (r Regime) TaxType() TaxType {
	switch r {
	case RegimeCITStandard, RegimeCITSmall, RegimeCITEstonian:
		return TaxCIT
	case RegimePITLumpSum:
		return TaxLumpSum
	default:
		return TaxPIT
	}
}

// LedgerTaxType is the loss-ledger key. Lump-sum taxpayers share the PIT ledger.
func (r Regime) LedgerTaxType() TaxType {
	if r.TaxType() == TaxCIT {
		return TaxCIT
	}
	return TaxPIT
}

// AllowsLossOffset reports whether carried-forward losses may reduce the base.
func (r Regime) AllowsLossOffset() bool {
	return r != RegimePITLumpSum && r != RegimeCITEstonian
}

// IncomeInput is the typed period input for the income tax calculator.
type IncomeInput struct {
	ClientID            string      `yaml:"client_id" json:"client_id" validate:"required"`
	TaxYear             int         `yaml:"tax_year" json:"tax_year" validate:"required,gte=2000,lte=2100"`
	Period              int         `yaml:"period" json:"period" validate:"gte=0,lte=12"`
	Regime              Regime      `yaml:"regime" json:"regime" validate:"required"`
	Revenue             money.Money `yaml:"revenue" json:"revenue"`
	Costs               money.Money `yaml:"costs" json:"costs"`
	NonDeductibleCosts  money.Money `yaml:"non_deductible_costs" json:"non_deductible_costs"`
	TaxExemptRevenue    money.Money `yaml:"tax_exempt_revenue" json:"tax_exempt_revenue"`
	ApplyLoss           bool        `yaml:"apply_loss" json:"apply_loss"`
	JointFiling         bool        `yaml:"joint_filing" json:"joint_filing"`
	SpouseIncome        money.Money `yaml:"spouse_income" json:"spouse_income"`
	ChildrenCount       int         `yaml:"children_count" json:"children_count" validate:"gte=0,lte=20"`
	ActivityCode        string      `yaml:"activity_code" json:"activity_code"`
	HealthContributions money.Money `yaml:"health_contributions" json:"health_contributions"`
	DistributedProfit   money.Money `yaml:"distributed_profit" json:"distributed_profit"`
}

// AsOf is the catalog lookup date for the input: the end of the tax year.
func (in IncomeInput) AsOf() time.Time {
	return time.Date(in.TaxYear, 12, 31, 0, 0, 0, 0, time.UTC)
}

// BracketLine is the amount of base taxed within one threshold.
type BracketLine struct {
	LowerBound decimal.Decimal  `json:"lower_bound"`
	UpperBound *decimal.Decimal `json:"upper_bound,omitempty"`
	Rate       decimal.Decimal  `json:"rate"`
	Amount     money.Money      `json:"amount"`
	Tax        money.Money      `json:"tax"`
}

// IncomeResult is the breakdown needed to reproduce the computation from stored fields alone.
type IncomeResult struct {
	Regime           Regime          `json:"regime"`
	TaxYear          int             `json:"tax_year"`
	AsOf             time.Time       `json:"as_of"`
	DeductibleCosts  money.Money     `json:"deductible_costs"`
	TaxableRevenue   money.Money     `json:"taxable_revenue"`
	Income           money.Money     `json:"income"`
	LossIncurred     money.Money     `json:"loss_incurred"`
	LossAvailable    money.Money     `json:"loss_available"`
	LossApplied      money.Money     `json:"loss_applied"`
	TaxableBase      money.Money     `json:"taxable_base"`
	Allowance        money.Money     `json:"allowance"`
	AdjustedBase     money.Money     `json:"adjusted_base"`
	Rate             decimal.Decimal `json:"rate"`
	Brackets         []BracketLine   `json:"brackets,omitempty"`
	JointFiling      bool            `json:"joint_filing"`
	BaseTax          money.Money     `json:"base_tax"`
	SurchargeBase    money.Money     `json:"surcharge_base"`
	SurchargeRate    decimal.Decimal `json:"surcharge_rate"`
	Surcharge        money.Money     `json:"surcharge"`
	DistributionTax  money.Money     `json:"distribution_tax"`
	ChildCredit      money.Money     `json:"child_credit"`
	HealthDeduction  money.Money     `json:"health_deduction"`
	TaxDue           money.Money     `json:"tax_due"`
	EffectiveRate    decimal.Decimal `json:"effective_rate"`
	ActivityCode     string          `json:"activity_code,omitempty"`
	CalculationNotes []string        `json:"notes,omitempty"`
}
