package domain

import (
	"github.com/shopspring/decimal"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// ContributorKind distinguishes payroll contributions from self-employed ones.
type ContributorKind string

const (
	ContributorEmployee     ContributorKind = "EMPLOYEE"
	ContributorSelfEmployed ContributorKind = "SELF_EMPLOYED"
)

// ContributionScheme selects the self-employed base formula.
type ContributionScheme string

const (
	SchemeStandard     ContributionScheme = "STANDARD"
	SchemeStartup      ContributionScheme = "STARTUP"
	SchemePreferential ContributionScheme = "PREFERENTIAL"
	SchemeSmall        ContributionScheme = "SMALL"
)

// ContributionCode names one line of the contribution rate table.
type ContributionCode string

const (
	ContribPension    ContributionCode = "PENSION"
	ContribDisability ContributionCode = "DISABILITY"
	ContribSickness   ContributionCode = "SICKNESS"
	ContribAccident   ContributionCode = "ACCIDENT"
	ContribLaborFund  ContributionCode = "LABOR_FUND"
	ContribFGSP       ContributionCode = "FGSP"
	ContribHealth     ContributionCode = "HEALTH"
)

// ContributionCodes lists the table in settlement order.
var ContributionCodes = []ContributionCode{
	ContribPension, ContribDisability, ContribSickness, ContribAccident,
	ContribLaborFund, ContribFGSP, ContribHealth,
}

// Capped reports whether the annual ceiling limits the line's base.
func (c ContributionCode) Capped() bool {
	return c == ContribPension || c == ContribDisability
}

// EmployeeRateCode and EmployerRateCode are the catalog codes of each share.
func (c ContributionCode) EmployeeRateCode() string { return string(c) + "_EMPLOYEE" }
func (c ContributionCode) EmployerRateCode() string { return string(c) + "_EMPLOYER" }

// ContributionInput is one month of contributions for one insured person.
type ContributionInput struct {
	ClientID       string             `yaml:"client_id" json:"client_id"`
	Year           int                `yaml:"year" json:"year" validate:"required,gte=2000,lte=2100"`
	Month          int                `yaml:"month" json:"month" validate:"required,gte=1,lte=12"`
	Kind           ContributorKind    `yaml:"kind" json:"kind" validate:"required,oneof=EMPLOYEE SELF_EMPLOYED"`
	Base           money.Money        `yaml:"base" json:"base"`
	YearToDateBase money.Money        `yaml:"year_to_date_base" json:"year_to_date_base"`
	Scheme         ContributionScheme `yaml:"scheme" json:"scheme"`
	SchemeIncome   money.Money        `yaml:"scheme_income" json:"scheme_income"`
	Sickness       bool               `yaml:"sickness" json:"sickness"`
	HealthBase     *money.Money       `yaml:"health_base,omitempty" json:"health_base,omitempty"`
}

// ContributionLine is one contribution with its split.
type ContributionLine struct {
	Code         ContributionCode `json:"code"`
	Base         money.Money      `json:"base"`
	EmployeeRate decimal.Decimal  `json:"employee_rate"`
	EmployerRate decimal.Decimal  `json:"employer_rate"`
	Employee     money.Money      `json:"employee"`
	Employer     money.Money      `json:"employer"`
}

// Total is the sum of both shares.
func (l ContributionLine) Total() money.Money {
	return l.Employee.Add(l.Employer)
}

// ContributionResult is the monthly contribution breakdown.
type ContributionResult struct {
	Kind          ContributorKind    `json:"kind"`
	Scheme        ContributionScheme `json:"scheme,omitempty"`
	Base          money.Money        `json:"base"`
	CappedBase    money.Money        `json:"capped_base"`
	HealthBase    money.Money        `json:"health_base"`
	Ceiling       money.Money        `json:"ceiling"`
	CeilingHit    bool               `json:"ceiling_hit"`
	Lines         []ContributionLine `json:"lines"`
	EmployeeTotal money.Money        `json:"employee_total"`
	EmployerTotal money.Money        `json:"employer_total"`
	Total         money.Money        `json:"total"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// Line returns the line for code, or false when it was not computed.
func (r *ContributionResult) Line(code ContributionCode) (ContributionLine, bool) {
	for _, l := range r.Lines {
		if l.Code == code {
			return l, true
		}
	}
	return ContributionLine{}, false
}
