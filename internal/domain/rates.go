package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxType enumerates the tax families held by the catalog and ledgers.
type TaxType string

const (
	TaxCIT     TaxType = "CIT"
	TaxPIT     TaxType = "PIT"
	TaxLumpSum TaxType = "PIT_LUMP_SUM"
	TaxVAT     TaxType = "VAT"
	TaxZUS     TaxType = "ZUS"
)

// Valid reports whether t is a known tax type.
func (t TaxType) Valid() bool {
	switch t {
	case TaxCIT, TaxPIT, TaxLumpSum, TaxVAT, TaxZUS:
		return true
	}
	return false
}

// RateEntry is a percentage rate (stored as a fraction) with temporal validity.
type RateEntry struct {
	TaxType   TaxType         `yaml:"tax_type" json:"tax_type"`
	Code      string          `yaml:"code" json:"code"`
	Value     decimal.Decimal `yaml:"value" json:"value"`
	ValidFrom time.Time       `yaml:"valid_from" json:"valid_from"`
	ValidTo   *time.Time      `yaml:"valid_to,omitempty" json:"valid_to,omitempty"`
	IsActive  bool            `yaml:"is_active" json:"is_active"`
}

// Threshold is one progressive bracket. UpperBound nil means unbounded.
type Threshold struct {
	TaxType    TaxType          `yaml:"tax_type" json:"tax_type"`
	LowerBound decimal.Decimal  `yaml:"lower_bound" json:"lower_bound"`
	UpperBound *decimal.Decimal `yaml:"upper_bound,omitempty" json:"upper_bound,omitempty"`
	Rate       decimal.Decimal  `yaml:"rate" json:"rate"`
	BaseAmount *decimal.Decimal `yaml:"base_amount,omitempty" json:"base_amount,omitempty"`
	ValidFrom  time.Time        `yaml:"valid_from" json:"valid_from"`
	ValidTo    *time.Time       `yaml:"valid_to,omitempty" json:"valid_to,omitempty"`
}

// ParameterEntry is an absolute statutory amount (allowance, ceiling, credit) with validity.
type ParameterEntry struct {
	TaxType   TaxType         `yaml:"tax_type" json:"tax_type"`
	Code      string          `yaml:"code" json:"code"`
	Amount    decimal.Decimal `yaml:"amount" json:"amount"`
	ValidFrom time.Time       `yaml:"valid_from" json:"valid_from"`
	ValidTo   *time.Time      `yaml:"valid_to,omitempty" json:"valid_to,omitempty"`
}

// Validity is a half-open-by-day date interval [From, To]; To nil is open-ended.
type Validity struct {
	From time.Time
	To   *time.Time
}

// Contains reports whether date falls within the interval (inclusive).
func (v Validity) Contains(date time.Time) bool {
	d := truncateDay(date)
	if d.Before(truncateDay(v.From)) {
		return false
	}
	return v.To == nil || !d.After(truncateDay(*v.To))
}

// Overlaps reports whether two validity intervals share at least one day.
func (v Validity) Overlaps(other Validity) bool {
	if v.To != nil && truncateDay(*v.To).Before(truncateDay(other.From)) {
		return false
	}
	if other.To != nil && truncateDay(*other.To).Before(truncateDay(v.From)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validity helpers for the catalog entries.
func (r RateEntry) Validity() Validity      { return Validity{From: r.ValidFrom, To: r.ValidTo} }
func (t Threshold) Validity() Validity      { return Validity{From: t.ValidFrom, To: t.ValidTo} }
func (p ParameterEntry) Validity() Validity { return Validity{From: p.ValidFrom, To: p.ValidTo} }

// Catalog codes shared between the seed dataset and the calculators.
const (
	RateCITStandard         = "STANDARD"
	RateCITSmall            = "SMALL"
	RateCITEstonian         = "ESTONIAN"
	RateCITEstonianDistSm   = "ESTONIAN_DIST_SMALL"
	RateCITEstonianDistStd  = "ESTONIAN_DIST_STANDARD"
	RateCITSurcharge        = "SURCHARGE"
	RatePITFlat             = "FLAT"
	RateLossOffsetShare     = "LOSS_OFFSET_SHARE"
	ParamSurchargeThreshold = "SURCHARGE_THRESHOLD"
	ParamTaxFreeAllowance   = "TAX_FREE_ALLOWANCE"
	ParamHealthDeductionCap = "HEALTH_DEDUCTION_CAP"
	ParamChildCreditFirst   = "CHILD_CREDIT_1"
	ParamChildCreditSecond  = "CHILD_CREDIT_2"
	ParamChildCreditThird   = "CHILD_CREDIT_3"
	ParamChildCreditFourth  = "CHILD_CREDIT_4_PLUS"
	ParamLossExpiryYears    = "LOSS_EXPIRY_YEARS"
	ParamZUSAnnualCeiling   = "ANNUAL_CEILING"
	ParamZUSMinimumWage     = "MINIMUM_WAGE"
	ParamZUSAverageWage     = "FORECAST_AVERAGE_WAGE"
	RateZUSPreferentialBase = "PREFERENTIAL_BASE_SHARE"
	RateZUSStandardBase     = "STANDARD_BASE_SHARE"
	RateZUSSmallIncomeShare = "SMALL_INCOME_SHARE"
	RateZUSSmallMinShare    = "SMALL_MIN_SHARE"
	RateZUSSmallMaxShare    = "SMALL_MAX_SHARE"
	RateVATStandard         = "23"
)
