package calculation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// ZUSCalculator computes social and health contributions for one month.
type ZUSCalculator struct {
	Catalog RateCatalog
	Logger  Logger
}

// NewZUSCalculator creates a contribution calculator over the catalog.
func NewZUSCalculator(cat RateCatalog, logger Logger) *ZUSCalculator {
	return &ZUSCalculator{Catalog: cat, Logger: orNop(logger)}
}

type shareRates struct {
	employee decimal.Decimal
	employer decimal.Decimal
}

// Calculate returns the contribution lines for the month.
func (zc *ZUSCalculator) Calculate(in domain.ContributionInput) (*domain.ContributionResult, error) {
	if in.Month < 1 || in.Month > 12 {
		return nil, domain.InvalidInput("month", "INVALID_MONTH", "month must be 1..12, got %d", in.Month)
	}
	if in.Base.IsNegative() {
		return nil, domain.InvalidInput("base", "NEGATIVE_AMOUNT", "contribution base must not be negative, got %s", in.Base)
	}
	if in.YearToDateBase.IsNegative() {
		return nil, domain.InvalidInput("year_to_date_base", "NEGATIVE_AMOUNT", "year-to-date base must not be negative, got %s", in.YearToDateBase)
	}
	asOf := dateutil.PeriodEnd(in.Year, in.Month)

	res := &domain.ContributionResult{Kind: in.Kind}
	var err error
	switch in.Kind {
	case domain.ContributorEmployee:
		res.Base = in.Base
	case domain.ContributorSelfEmployed:
		res.Scheme = in.Scheme
		if res.Scheme == "" {
			res.Scheme = domain.SchemeStandard
		}
		if res.Base, err = zc.selfEmployedBase(res.Scheme, in.SchemeIncome, asOf); err != nil {
			return nil, err
		}
	default:
		return nil, domain.InvalidInput("kind", "UNKNOWN_CONTRIBUTOR", "unknown contributor kind %q", in.Kind)
	}

	rates, err := zc.rateTable(asOf)
	if err != nil {
		return nil, err
	}

	ceiling, err := zc.Catalog.Parameter(domain.TaxZUS, domain.ParamZUSAnnualCeiling, asOf)
	if err != nil {
		return nil, err
	}
	res.Ceiling = money.NewMoneyFromDecimal(ceiling)
	res.CappedBase = zc.capBase(res, in.YearToDateBase)

	healthDeductions := money.Zero()
	if res.Scheme != domain.SchemeStartup {
		for _, code := range domain.ContributionCodes {
			if code == domain.ContribHealth || !applies(code, in) {
				continue
			}
			line := buildLine(code, res, rates[code], in.Kind)
			res.Lines = append(res.Lines, line)
			if in.Kind == domain.ContributorEmployee {
				healthDeductions = healthDeductions.Add(line.Employee)
			}
		}
	} else {
		res.Warnings = append(res.Warnings, "startup relief: social contributions waived, health contribution only")
	}

	if res.HealthBase, err = zc.healthBase(in, res, healthDeductions, asOf); err != nil {
		return nil, err
	}
	health := rates[domain.ContribHealth]
	res.Lines = append(res.Lines, domain.ContributionLine{
		Code:         domain.ContribHealth,
		Base:         res.HealthBase,
		EmployeeRate: health.employee.Add(health.employer),
		Employee:     res.HealthBase.Percent(health.employee.Add(health.employer)).Round(),
		Employer:     money.Zero(),
	})

	for _, l := range res.Lines {
		res.EmployeeTotal = res.EmployeeTotal.Add(l.Employee)
		res.EmployerTotal = res.EmployerTotal.Add(l.Employer)
	}
	res.Total = res.EmployeeTotal.Add(res.EmployerTotal)
	res.Base = res.Base.Round()
	res.CappedBase = res.CappedBase.Round()
	return res, nil
}

func (zc *ZUSCalculator) rateTable(asOf time.Time) (map[domain.ContributionCode]shareRates, error) {
	out := make(map[domain.ContributionCode]shareRates, len(domain.ContributionCodes))
	for _, code := range domain.ContributionCodes {
		ee, err := zc.Catalog.Rate(domain.TaxZUS, code.EmployeeRateCode(), asOf)
		if err != nil {
			return nil, err
		}
		er, err := zc.Catalog.Rate(domain.TaxZUS, code.EmployerRateCode(), asOf)
		if err != nil {
			return nil, err
		}
		out[code] = shareRates{employee: ee.Value, employer: er.Value}
	}
	return out, nil
}

// selfEmployedBase picks the declared base by scheme. Schemes never touch the rate table.
func (zc *ZUSCalculator) selfEmployedBase(scheme domain.ContributionScheme, income money.Money, asOf time.Time) (money.Money, error) {
	param := func(code string) (money.Money, error) {
		v, err := zc.Catalog.Parameter(domain.TaxZUS, code, asOf)
		return money.NewMoneyFromDecimal(v), err
	}
	share := func(code string) (decimal.Decimal, error) {
		e, err := zc.Catalog.Rate(domain.TaxZUS, code, asOf)
		return e.Value, err
	}

	switch scheme {
	case domain.SchemeStartup:
		return money.Zero(), nil
	case domain.SchemePreferential:
		minWage, err := param(domain.ParamZUSMinimumWage)
		if err != nil {
			return money.Zero(), err
		}
		s, err := share(domain.RateZUSPreferentialBase)
		if err != nil {
			return money.Zero(), err
		}
		return minWage.Percent(s).Round(), nil
	case domain.SchemeStandard:
		avg, err := param(domain.ParamZUSAverageWage)
		if err != nil {
			return money.Zero(), err
		}
		s, err := share(domain.RateZUSStandardBase)
		if err != nil {
			return money.Zero(), err
		}
		return avg.Percent(s).Round(), nil
	case domain.SchemeSmall:
		if income.IsNegative() {
			return money.Zero(), domain.InvalidInput("scheme_income", "NEGATIVE_AMOUNT", "scheme income must not be negative, got %s", income)
		}
		minWage, err := param(domain.ParamZUSMinimumWage)
		if err != nil {
			return money.Zero(), err
		}
		avg, err := param(domain.ParamZUSAverageWage)
		if err != nil {
			return money.Zero(), err
		}
		incomeShare, err := share(domain.RateZUSSmallIncomeShare)
		if err != nil {
			return money.Zero(), err
		}
		minShare, err := share(domain.RateZUSSmallMinShare)
		if err != nil {
			return money.Zero(), err
		}
		maxShare, err := share(domain.RateZUSSmallMaxShare)
		if err != nil {
			return money.Zero(), err
		}
		base := income.Percent(incomeShare).Div(decimal.NewFromInt(12))
		lo, hi := minWage.Percent(minShare), avg.Percent(maxShare)
		return money.Min(money.Max(base, lo), hi).Round(), nil
	default:
		return money.Zero(), domain.InvalidInput("scheme", "UNKNOWN_SCHEME", "unknown contribution scheme %q", scheme)
	}
}

// capBase limits the pension and disability base to what is left under the annual ceiling.
func (zc *ZUSCalculator) capBase(res *domain.ContributionResult, ytd money.Money) money.Money {
	room := res.Ceiling.Sub(ytd).ClampZero()
	if res.Base.LessThanOrEqual(room) {
		return res.Base
	}
	res.CeilingHit = true
	msg := fmt.Sprintf("annual ceiling %s reached: pension and disability base limited to %s of %s",
		res.Ceiling, room, res.Base)
	res.Warnings = append(res.Warnings, msg)
	zc.Logger.Warnf("%s", msg)
	return room
}

func applies(code domain.ContributionCode, in domain.ContributionInput) bool {
	if in.Kind == domain.ContributorEmployee {
		return true
	}
	switch code {
	case domain.ContribSickness:
		return in.Sickness
	case domain.ContribFGSP:
		return false
	}
	return true
}

func buildLine(code domain.ContributionCode, res *domain.ContributionResult, r shareRates, kind domain.ContributorKind) domain.ContributionLine {
	base := res.Base
	if code.Capped() {
		base = res.CappedBase
	}
	line := domain.ContributionLine{Code: code, Base: base.Round(), EmployeeRate: r.employee, EmployerRate: r.employer}
	if kind == domain.ContributorSelfEmployed {
		line.EmployeeRate = r.employee.Add(r.employer)
		line.EmployerRate = decimal.Zero
	}
	line.Employee = base.Percent(line.EmployeeRate).Round()
	line.Employer = base.Percent(line.EmployerRate).Round()
	return line
}

// healthBase is the employee base net of employee social contributions. Self-employed
// contributors use the declared health base, or the minimum wage when none is given.
func (zc *ZUSCalculator) healthBase(in domain.ContributionInput, res *domain.ContributionResult, deductions money.Money, asOf time.Time) (money.Money, error) {
	if in.HealthBase != nil {
		if in.HealthBase.IsNegative() {
			return money.Zero(), domain.InvalidInput("health_base", "NEGATIVE_AMOUNT", "health base must not be negative")
		}
		return in.HealthBase.Round(), nil
	}
	if in.Kind == domain.ContributorEmployee {
		return res.Base.Sub(deductions).ClampZero().Round(), nil
	}
	minWage, err := zc.Catalog.Parameter(domain.TaxZUS, domain.ParamZUSMinimumWage, asOf)
	if err != nil {
		return money.Zero(), err
	}
	return money.NewMoneyFromDecimal(minWage).Round(), nil
}
