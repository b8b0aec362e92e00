package calculation

import (
	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// CalculationEngine bundles the calculators over one catalog snapshot.
// Every method is a pure function of its inputs and the catalog.
type CalculationEngine struct {
	Catalog RateCatalog
	Income  *IncomeCalculator
	VAT     *VatCalculator
	ZUS     *ZUSCalculator
	Logger  Logger
}

// NewCalculationEngine creates an engine with a no-op logger.
func NewCalculationEngine(cat RateCatalog) *CalculationEngine {
	logger := NopLogger{}
	return &CalculationEngine{
		Catalog: cat,
		Income:  NewIncomeCalculator(cat, logger),
		VAT:     NewVatCalculator(cat, logger),
		ZUS:     NewZUSCalculator(cat, logger),
		Logger:  logger,
	}
}

// SetLogger sets the logger for the engine and its calculators. If nil is provided, a no-op logger is used.
func (ce *CalculationEngine) SetLogger(l Logger) {
	l = orNop(l)
	ce.Logger = l
	ce.Income.Logger = l
	ce.VAT.Logger = l
	ce.ZUS.Logger = l
}

// CalculateIncome runs the income tax calculator.
func (ce *CalculationEngine) CalculateIncome(in domain.IncomeInput, profile *domain.ClientProfile, lossAvailable money.Money) (*domain.IncomeResult, error) {
	return ce.Income.Calculate(in, profile, lossAvailable)
}

// CalculateVatLine runs the per-transaction VAT calculation.
func (ce *CalculationEngine) CalculateVatLine(in domain.VatLineInput) (*domain.VatLineResult, error) {
	return ce.VAT.CalculateTransaction(in)
}

// SettleVat runs the period settlement.
func (ce *CalculationEngine) SettleVat(in domain.VatSettlementInput) (*domain.VatSettlementResult, error) {
	return ce.VAT.Settle(in)
}

// CalculateContributions runs the ZUS calculator.
func (ce *CalculationEngine) CalculateContributions(in domain.ContributionInput) (*domain.ContributionResult, error) {
	return ce.ZUS.Calculate(in)
}
