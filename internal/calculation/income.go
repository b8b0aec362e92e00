package calculation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// RateCatalog is the read side of the rate/threshold catalog used by the calculators.
type RateCatalog interface {
	Rate(taxType domain.TaxType, code string, asOf time.Time) (domain.RateEntry, error)
	Rates(taxType domain.TaxType, asOf time.Time) []domain.RateEntry
	Thresholds(taxType domain.TaxType, asOf time.Time) ([]domain.Threshold, error)
	Parameter(taxType domain.TaxType, code string, asOf time.Time) (decimal.Decimal, error)
}

// IncomeCalculator computes CIT and PIT liability for one period.
type IncomeCalculator struct {
	Catalog RateCatalog
	Logger  Logger
}

// NewIncomeCalculator creates an income tax calculator over the catalog.
func NewIncomeCalculator(cat RateCatalog, logger Logger) *IncomeCalculator {
	return &IncomeCalculator{Catalog: cat, Logger: orNop(logger)}
}

// Calculate runs the regime algorithm. lossAvailable is the ledger balance snapshot
// for the regime's loss ledger; profile may be nil when eligibility was checked upstream.
func (ic *IncomeCalculator) Calculate(in domain.IncomeInput, profile *domain.ClientProfile, lossAvailable money.Money) (*domain.IncomeResult, error) {
	if err := validateIncomeInput(in); err != nil {
		return nil, err
	}
	if profile != nil {
		if err := profile.CheckRegime(in.Regime); err != nil {
			return nil, err
		}
	}

	asOf := in.AsOf()
	res := &domain.IncomeResult{
		Regime:       in.Regime,
		TaxYear:      in.TaxYear,
		AsOf:         asOf,
		JointFiling:  in.JointFiling && in.Regime == domain.RegimePITProgressive,
		ActivityCode: in.ActivityCode,
	}

	res.DeductibleCosts = in.Costs.Sub(in.NonDeductibleCosts)
	res.TaxableRevenue = in.Revenue.Sub(in.TaxExemptRevenue)
	income := res.TaxableRevenue.Sub(res.DeductibleCosts)

	if in.Regime == domain.RegimePITLumpSum {
		return ic.lumpSum(in, res)
	}

	if income.IsNegative() {
		if in.Regime.AllowsLossOffset() {
			res.LossIncurred = income.Abs()
		} else {
			res.CalculationNotes = append(res.CalculationNotes, fmt.Sprintf("loss of %s is not carried forward under %s", income.Abs(), in.Regime))
		}
		income = money.Zero()
	}
	res.Income = income

	if err := ic.applyLoss(in, res, lossAvailable); err != nil {
		return nil, err
	}
	res.TaxableBase = res.Income.Sub(res.LossApplied)

	var err error
	switch in.Regime {
	case domain.RegimeCITStandard, domain.RegimeCITSmall:
		err = ic.cit(in, res)
	case domain.RegimeCITEstonian:
		err = ic.estonian(in, profile, res)
	case domain.RegimePITProgressive:
		err = ic.progressive(in, res)
	case domain.RegimePITFlat:
		err = ic.flat(in, res)
	}
	if err != nil {
		return nil, err
	}

	ic.finish(res)
	return res, nil
}

func validateIncomeInput(in domain.IncomeInput) error {
	if _, err := domain.ParseRegime(string(in.Regime)); err != nil {
		return err
	}
	amounts := []struct {
		field string
		value money.Money
	}{
		{"revenue", in.Revenue},
		{"costs", in.Costs},
		{"non_deductible_costs", in.NonDeductibleCosts},
		{"tax_exempt_revenue", in.TaxExemptRevenue},
		{"spouse_income", in.SpouseIncome},
		{"health_contributions", in.HealthContributions},
		{"distributed_profit", in.DistributedProfit},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return domain.InvalidInput(a.field, "NEGATIVE_AMOUNT", "%s must not be negative, got %s", a.field, a.value)
		}
	}
	if in.NonDeductibleCosts.GreaterThan(in.Costs) {
		return domain.InvalidInput("non_deductible_costs", "EXCEEDS_COSTS", "non-deductible costs %s exceed costs %s", in.NonDeductibleCosts, in.Costs)
	}
	if in.TaxExemptRevenue.GreaterThan(in.Revenue) {
		return domain.InvalidInput("tax_exempt_revenue", "EXCEEDS_REVENUE", "tax-exempt revenue %s exceeds revenue %s", in.TaxExemptRevenue, in.Revenue)
	}
	if in.ChildrenCount < 0 {
		return domain.InvalidInput("children_count", "NEGATIVE_COUNT", "children count must not be negative")
	}
	if in.Period < 0 || in.Period > 12 {
		return domain.InvalidInput("period", "INVALID_PERIOD", "period must be 0 (annual) or 1..12, got %d", in.Period)
	}
	return nil
}

func (ic *IncomeCalculator) applyLoss(in domain.IncomeInput, res *domain.IncomeResult, available money.Money) error {
	res.LossAvailable = available.ClampZero()
	if !in.ApplyLoss || !res.Income.IsPositive() {
		return nil
	}
	if !in.Regime.AllowsLossOffset() {
		res.CalculationNotes = append(res.CalculationNotes, fmt.Sprintf("loss offset does not apply under %s", in.Regime))
		return nil
	}
	share, err := ic.Catalog.Rate(in.Regime.LedgerTaxType(), domain.RateLossOffsetShare, res.AsOf)
	if err != nil {
		return err
	}
	// Floor so the applied amount never exceeds the statutory share of income.
	limit := money.NewMoneyFromDecimal(res.Income.Percent(share.Value).Decimal.RoundFloor(money.CentScale))
	res.LossApplied = money.Min(res.LossAvailable, limit)
	if res.LossApplied.IsPositive() {
		ic.Logger.Debugf("loss offset: available %s, limit %s, applied %s", res.LossAvailable, limit, res.LossApplied)
	}
	return nil
}

func (ic *IncomeCalculator) cit(in domain.IncomeInput, res *domain.IncomeResult) error {
	code := domain.RateCITStandard
	if in.Regime == domain.RegimeCITSmall {
		code = domain.RateCITSmall
	}
	rate, err := ic.Catalog.Rate(domain.TaxCIT, code, res.AsOf)
	if err != nil {
		return err
	}
	res.Rate = rate.Value
	res.BaseTax = res.TaxableBase.Percent(rate.Value)
	return ic.surcharge(res)
}

func (ic *IncomeCalculator) surcharge(res *domain.IncomeResult) error {
	threshold, err := ic.Catalog.Parameter(domain.TaxCIT, domain.ParamSurchargeThreshold, res.AsOf)
	if err != nil {
		return err
	}
	rate, err := ic.Catalog.Rate(domain.TaxCIT, domain.RateCITSurcharge, res.AsOf)
	if err != nil {
		return err
	}
	res.SurchargeRate = rate.Value
	excess := res.TaxableBase.Sub(money.NewMoneyFromDecimal(threshold))
	if !excess.IsPositive() {
		return nil
	}
	res.SurchargeBase = excess
	res.Surcharge = excess.Percent(rate.Value)
	ic.Logger.Infof("solidarity surcharge on %s above %s", excess, threshold.StringFixed(2))
	return nil
}

func (ic *IncomeCalculator) estonian(in domain.IncomeInput, profile *domain.ClientProfile, res *domain.IncomeResult) error {
	rate, err := ic.Catalog.Rate(domain.TaxCIT, domain.RateCITEstonian, res.AsOf)
	if err != nil {
		return err
	}
	res.Rate = rate.Value
	res.BaseTax = res.TaxableBase.Percent(rate.Value)

	if !in.DistributedProfit.IsPositive() {
		return nil
	}
	code := domain.RateCITEstonianDistStd
	if profile != nil && profile.SmallTaxpayer {
		code = domain.RateCITEstonianDistSm
	}
	dist, err := ic.Catalog.Rate(domain.TaxCIT, code, res.AsOf)
	if err != nil {
		return err
	}
	res.DistributionTax = in.DistributedProfit.Percent(dist.Value)
	res.CalculationNotes = append(res.CalculationNotes, fmt.Sprintf("distributed profit %s taxed at %s", in.DistributedProfit, dist.Value))
	return nil
}

func (ic *IncomeCalculator) progressive(in domain.IncomeInput, res *domain.IncomeResult) error {
	allowance, err := ic.Catalog.Parameter(domain.TaxPIT, domain.ParamTaxFreeAllowance, res.AsOf)
	if err != nil {
		return err
	}
	brackets, err := ic.Catalog.Thresholds(domain.TaxPIT, res.AsOf)
	if err != nil {
		return err
	}
	res.Allowance = money.NewMoneyFromDecimal(allowance)

	base := res.TaxableBase
	if res.JointFiling {
		base = base.Add(in.SpouseIncome).Div(decimal.NewFromInt(2))
		res.CalculationNotes = append(res.CalculationNotes, "joint filing: tax computed on half the combined base and doubled")
	}
	res.AdjustedBase = base.Sub(res.Allowance).ClampZero()

	tax := money.Zero()
	for _, b := range brackets {
		lower := money.NewMoneyFromDecimal(b.LowerBound)
		if res.AdjustedBase.LessThanOrEqual(lower) {
			break
		}
		top := res.AdjustedBase
		if b.UpperBound != nil {
			top = money.Min(top, money.NewMoneyFromDecimal(*b.UpperBound))
		}
		inBracket := top.Sub(lower)
		bracketTax := inBracket.Percent(b.Rate)
		tax = tax.Add(bracketTax)
		res.Rate = b.Rate
		res.Brackets = append(res.Brackets, domain.BracketLine{
			LowerBound: b.LowerBound,
			UpperBound: b.UpperBound,
			Rate:       b.Rate,
			Amount:     inBracket.Round(),
			Tax:        bracketTax.Round(),
		})
	}
	if res.JointFiling {
		tax = tax.Mul(decimal.NewFromInt(2))
	}
	res.BaseTax = tax

	credit, err := ic.childCredit(in.ChildrenCount, res.AsOf)
	if err != nil {
		return err
	}
	res.ChildCredit = money.Min(credit, res.BaseTax)
	if credit.GreaterThan(res.ChildCredit) {
		res.CalculationNotes = append(res.CalculationNotes, fmt.Sprintf("child credit %s limited to tax %s", credit, res.BaseTax.Round()))
	}
	return nil
}

// childCredit sums the ordinal schedule: first and second child share one amount,
// the third a higher one and every further child the highest.
func (ic *IncomeCalculator) childCredit(children int, asOf time.Time) (money.Money, error) {
	total := money.Zero()
	for i := 1; i <= children; i++ {
		code := domain.ParamChildCreditFourth
		switch i {
		case 1:
			code = domain.ParamChildCreditFirst
		case 2:
			code = domain.ParamChildCreditSecond
		case 3:
			code = domain.ParamChildCreditThird
		}
		amount, err := ic.Catalog.Parameter(domain.TaxPIT, code, asOf)
		if err != nil {
			return money.Zero(), err
		}
		total = total.Add(money.NewMoneyFromDecimal(amount))
	}
	return total, nil
}

func (ic *IncomeCalculator) flat(in domain.IncomeInput, res *domain.IncomeResult) error {
	rate, err := ic.Catalog.Rate(domain.TaxPIT, domain.RatePITFlat, res.AsOf)
	if err != nil {
		return err
	}
	res.Rate = rate.Value
	res.BaseTax = res.TaxableBase.Percent(rate.Value)

	if !in.HealthContributions.IsPositive() {
		return nil
	}
	limit, err := ic.Catalog.Parameter(domain.TaxPIT, domain.ParamHealthDeductionCap, res.AsOf)
	if err != nil {
		return err
	}
	deduction := money.Min(in.HealthContributions, money.NewMoneyFromDecimal(limit))
	res.HealthDeduction = money.Min(deduction, res.BaseTax)
	return nil
}

func (ic *IncomeCalculator) lumpSum(in domain.IncomeInput, res *domain.IncomeResult) (*domain.IncomeResult, error) {
	if in.ActivityCode == "" {
		return nil, domain.InvalidInput("activity_code", "UNKNOWN_ACTIVITY", "lump-sum regime requires an activity code")
	}
	rate, err := ic.Catalog.Rate(domain.TaxLumpSum, in.ActivityCode, res.AsOf)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound && len(ic.Catalog.Rates(domain.TaxLumpSum, res.AsOf)) > 0 {
			return nil, domain.InvalidInput("activity_code", "UNKNOWN_ACTIVITY", "unknown lump-sum activity code %q", in.ActivityCode).WithCause(err)
		}
		return nil, err
	}
	if in.ApplyLoss {
		res.CalculationNotes = append(res.CalculationNotes, "loss offset does not apply to lump-sum revenue")
	}
	res.Income = res.TaxableRevenue
	res.TaxableBase = res.TaxableRevenue
	res.Rate = rate.Value
	res.BaseTax = res.TaxableRevenue.Percent(rate.Value)
	ic.finish(res)
	return res, nil
}

// finish derives the final tax and rounds the public fields. Nothing above is rounded.
func (ic *IncomeCalculator) finish(res *domain.IncomeResult) {
	tax := res.BaseTax.Add(res.Surcharge).Add(res.DistributionTax).
		Sub(res.ChildCredit).Sub(res.HealthDeduction).ClampZero()
	res.TaxDue = tax.RoundWhole()
	if res.TaxableRevenue.IsPositive() {
		res.EffectiveRate = res.TaxDue.Decimal.Div(res.TaxableRevenue.Decimal).Round(4)
	}

	res.DeductibleCosts = res.DeductibleCosts.Round()
	res.TaxableRevenue = res.TaxableRevenue.Round()
	res.Income = res.Income.Round()
	res.LossIncurred = res.LossIncurred.Round()
	res.LossAvailable = res.LossAvailable.Round()
	res.LossApplied = res.LossApplied.Round()
	res.TaxableBase = res.TaxableBase.Round()
	res.Allowance = res.Allowance.Round()
	res.AdjustedBase = res.AdjustedBase.Round()
	res.BaseTax = res.BaseTax.Round()
	res.SurchargeBase = res.SurchargeBase.Round()
	res.Surcharge = res.Surcharge.Round()
	res.DistributionTax = res.DistributionTax.Round()
	res.ChildCredit = res.ChildCredit.Round()
	res.HealthDeduction = res.HealthDeduction.Round()

	ic.Logger.Debugf("%s %d: base %s, tax due %s", res.Regime, res.TaxYear, res.TaxableBase, res.TaxDue)
}
