package domain

import (
	"time"

	"github.com/google/uuid"

	money "github.com/pltax/settlement-engine/pkg/decimal"
)

// LossStatus is derived from the record balances and the evaluation year.
type LossStatus string

const (
	LossActive            LossStatus = "ACTIVE"
	LossPartiallyConsumed LossStatus = "PARTIALLY_CONSUMED"
	LossFullyConsumed     LossStatus = "FULLY_CONSUMED"
	LossExpired           LossStatus = "EXPIRED"
	LossSuperseded        LossStatus = "SUPERSEDED"
)

// LossUsage is one append-only entry of a record's usage history.
// A reversal is a negative entry for the same declaration, with ReversedBy naming the correction.
type LossUsage struct {
	Year          int         `json:"year"`
	Amount        money.Money `json:"amount"`
	DeclarationID string      `json:"declaration_id"`
	ReversedBy    string      `json:"reversed_by,omitempty"`
	At            time.Time   `json:"at"`
}

// LossRecord is a tax loss carried forward for one client and tax type.
type LossRecord struct {
	ID                  uuid.UUID   `json:"id"`
	ClientID            string      `json:"client_id"`
	TaxType             TaxType     `json:"tax_type"`
	LossYear            int         `json:"loss_year"`
	OriginalAmount      money.Money `json:"original_amount"`
	UsedAmount          money.Money `json:"used_amount"`
	RemainingAmount     money.Money `json:"remaining_amount"`
	ExpiryYear          int         `json:"expiry_year"`
	SourceDeclarationID string      `json:"source_declaration_id,omitempty"`
	SupersededBy        string      `json:"superseded_by,omitempty"`
	UsageHistory        []LossUsage `json:"usage_history"`
	CreatedAt           time.Time   `json:"created_at"`
}

// StatusAt derives the record status as seen in the given year.
func (r *LossRecord) StatusAt(year int) LossStatus {
	switch {
	case r.SupersededBy != "":
		return LossSuperseded
	case r.RemainingAmount.IsZero():
		return LossFullyConsumed
	case year > r.ExpiryYear:
		return LossExpired
	case r.UsedAmount.IsPositive():
		return LossPartiallyConsumed
	default:
		return LossActive
	}
}

// EligibleIn reports whether the record may be consumed in the given year.
func (r *LossRecord) EligibleIn(year int) bool {
	return r.SupersededBy == "" && year <= r.ExpiryYear && r.LossYear < year && r.RemainingAmount.IsPositive()
}

// UsedBy sums the net usage attributed to a declaration.
func (r *LossRecord) UsedBy(declarationID string) money.Money {
	total := money.Zero()
	for _, u := range r.UsageHistory {
		if u.DeclarationID == declarationID {
			total = total.Add(u.Amount)
		}
	}
	return total
}

// CheckInvariant verifies used + remaining == original and remaining >= 0.
func (r *LossRecord) CheckInvariant() error {
	if r.RemainingAmount.IsNegative() {
		return InvariantViolation("LOSS_NEGATIVE_REMAINING", "loss record %s has negative remaining amount %s", r.ID, r.RemainingAmount)
	}
	if !r.UsedAmount.Add(r.RemainingAmount).Equal(r.OriginalAmount) {
		return InvariantViolation("LOSS_BALANCE_MISMATCH", "loss record %s: used %s + remaining %s != original %s",
			r.ID, r.UsedAmount, r.RemainingAmount, r.OriginalAmount)
	}
	return nil
}
