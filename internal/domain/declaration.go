package domain

import (
	"time"

	"github.com/google/uuid"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// DeclarationStatus enumerates the income-tax declaration lifecycle.
type DeclarationStatus string

const (
	DeclarationDraft      DeclarationStatus = "DRAFT"
	DeclarationCalculated DeclarationStatus = "CALCULATED"
	DeclarationSubmitted  DeclarationStatus = "SUBMITTED"
	DeclarationAccepted   DeclarationStatus = "ACCEPTED"
	DeclarationCorrected  DeclarationStatus = "CORRECTED"
)

// Declaration is one income-tax filing for a client and period.
// Period 0 denotes the annual return, 1..12 a monthly advance.
type Declaration struct {
	ID               uuid.UUID         `json:"id"`
	ClientID         string            `json:"client_id"`
	TaxType          TaxType           `json:"tax_type"`
	TaxYear          int               `json:"tax_year"`
	Period           int               `json:"period"`
	Method           Regime            `json:"method"`
	Revenue          money.Money       `json:"revenue"`
	Costs            money.Money       `json:"costs"`
	TaxableIncome    money.Money       `json:"taxable_income"`
	TaxDue           money.Money       `json:"tax_due"`
	LossApplied      money.Money       `json:"loss_applied"`
	LossIncurred     money.Money       `json:"loss_incurred"`
	Status           DeclarationStatus `json:"status"`
	CorrectionNumber int               `json:"correction_number"`
	CorrectsID       *uuid.UUID        `json:"corrects_id,omitempty"`
	CorrectedByID    *uuid.UUID        `json:"corrected_by_id,omitempty"`
	Input            IncomeInput       `json:"input"`
	Result           *IncomeResult     `json:"result,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
}

// PeriodKey identifies the filing slot a declaration occupies.
type PeriodKey struct {
	ClientID string
	TaxType  TaxType
	TaxYear  int
	Period   int
}

// Key returns the declaration's filing slot.
func (d *Declaration) Key() PeriodKey {
	return PeriodKey{ClientID: d.ClientID, TaxType: d.TaxType, TaxYear: d.TaxYear, Period: d.Period}
}

// Mutable reports whether the declaration may still be recalculated in place.
func (d *Declaration) Mutable() bool {
	return d.Status == DeclarationDraft || d.Status == DeclarationCalculated
}

// IsCorrection reports whether this declaration supersedes an earlier one.
func (d *Declaration) IsCorrection() bool {
	return d.CorrectsID != nil
}

var declarationTransitions = map[DeclarationStatus][]DeclarationStatus{
	DeclarationDraft:      {DeclarationCalculated},
	DeclarationCalculated: {DeclarationCalculated, DeclarationSubmitted},
	DeclarationSubmitted:  {DeclarationAccepted, DeclarationCorrected},
	DeclarationAccepted:   {DeclarationCorrected},
}

// Transition moves the declaration to a new status or reports an InvariantViolation.
func (d *Declaration) Transition(to DeclarationStatus, at time.Time) error {
	for _, allowed := range declarationTransitions[d.Status] {
		if allowed == to {
			d.Status = to
			d.UpdatedAt = at
			if to == DeclarationSubmitted {
				ts := at
				d.SubmittedAt = &ts
			}
			return nil
		}
	}
	return InvariantViolation("DECLARATION_IMMUTABLE", "declaration %s cannot move from %s to %s", d.ID, d.Status, to)
}

// ApplyResult copies a calculation result into the declaration's summary fields.
func (d *Declaration) ApplyResult(in IncomeInput, res *IncomeResult) {
	d.Input = in
	d.Result = res
	d.Method = res.Regime
	d.Revenue = in.Revenue
	d.Costs = in.Costs
	d.TaxableIncome = res.TaxableBase
	d.TaxDue = res.TaxDue
	d.LossApplied = res.LossApplied
	d.LossIncurred = res.LossIncurred
}
