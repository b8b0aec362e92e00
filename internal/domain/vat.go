package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// VatDirection tells whether a transaction is a sale, a purchase, or a self-assessed pair.
type VatDirection string

const (
	VatInput  VatDirection = "INPUT"
	VatOutput VatDirection = "OUTPUT"
	VatBoth   VatDirection = "BOTH"
)

// VatClass is the transaction class used to bucket the settlement breakdown.
type VatClass string

const (
	ClassDomestic           VatClass = "DOMESTIC"
	ClassIntraEUSupply      VatClass = "INTRA_EU_SUPPLY"
	ClassExport             VatClass = "EXPORT"
	ClassReverseCharge      VatClass = "REVERSE_CHARGE"
	ClassIntraEUAcquisition VatClass = "INTRA_EU_ACQUISITION"
	ClassImport             VatClass = "IMPORT"
	ClassImportServices     VatClass = "IMPORT_SERVICES"
)

// SelfAssessed reports classes recorded as a matched OUTPUT/INPUT pair.
func (c VatClass) SelfAssessed() bool {
	return c == ClassIntraEUAcquisition || c == ClassImportServices
}

// Valid reports whether c is a known class.
func (c VatClass) Valid() bool {
	switch c {
	case ClassDomestic, ClassIntraEUSupply, ClassExport, ClassReverseCharge,
		ClassIntraEUAcquisition, ClassImport, ClassImportServices:
		return true
	}
	return false
}

// VatTxStatus is the lifecycle of a recorded VAT transaction.
type VatTxStatus string

const (
	VatTxActive    VatTxStatus = "ACTIVE"
	VatTxCorrected VatTxStatus = "CORRECTED"
	VatTxCancelled VatTxStatus = "CANCELLED"
)

// Settles reports whether the transaction takes part in a period settlement.
func (s VatTxStatus) Settles() bool {
	return s == VatTxActive || s == VatTxCorrected
}

// VatTransaction is one recorded VAT line.
type VatTransaction struct {
	ID                    uuid.UUID          `yaml:"id" json:"id"`
	ClientID              string             `yaml:"client_id" json:"client_id"`
	Direction             VatDirection       `yaml:"direction" json:"direction"`
	Class                 VatClass           `yaml:"class" json:"class"`
	RateCode              string             `yaml:"rate_code" json:"rate_code"`
	NetAmount             money.Money        `yaml:"net_amount" json:"net_amount"`
	VatAmount             money.Money        `yaml:"vat_amount" json:"vat_amount"`
	Period                dateutil.YearMonth `yaml:"period" json:"period"`
	IsCorrection          bool               `yaml:"is_correction" json:"is_correction"`
	CorrectsTransactionID *uuid.UUID         `yaml:"corrects_transaction_id,omitempty" json:"corrects_transaction_id,omitempty"`
	Status                VatTxStatus        `yaml:"status" json:"status"`
	PairID                *uuid.UUID         `yaml:"pair_id,omitempty" json:"pair_id,omitempty"`
}

// AmountKind tells whether a per-transaction amount is net or gross.
type AmountKind string

const (
	AmountNet   AmountKind = "NET"
	AmountGross AmountKind = "GROSS"
)

// VatLineInput is the per-transaction calculation request.
type VatLineInput struct {
	RateCode     string          `yaml:"rate_code" json:"rate_code" validate:"required"`
	Amount       money.Money     `yaml:"amount" json:"amount"`
	Kind         AmountKind      `yaml:"kind" json:"kind" validate:"required,oneof=NET GROSS"`
	Date         time.Time       `yaml:"date" json:"date"`
	Currency     string          `yaml:"currency" json:"currency"`
	ExchangeRate decimal.Decimal `yaml:"exchange_rate" json:"exchange_rate"`
}

// VatAmounts is a net/vat/gross triple.
type VatAmounts struct {
	Net   money.Money `json:"net"`
	Vat   money.Money `json:"vat"`
	Gross money.Money `json:"gross"`
}

// VatLineResult carries the triple in the document currency and, for foreign currency, in PLN.
type VatLineResult struct {
	RateCode     string          `json:"rate_code"`
	Rate         decimal.Decimal `json:"rate"`
	Currency     string          `json:"currency"`
	Amounts      VatAmounts      `json:"amounts"`
	ExchangeRate decimal.Decimal `json:"exchange_rate,omitempty"`
	PLN          *VatAmounts     `json:"pln,omitempty"`
}

// CarryForwardStatus is the lifecycle of a VAT credit.
type CarryForwardStatus string

const (
	CarryForwardActive           CarryForwardStatus = "ACTIVE"
	CarryForwardPartiallyApplied CarryForwardStatus = "PARTIALLY_APPLIED"
	CarryForwardFullyApplied     CarryForwardStatus = "FULLY_APPLIED"
	CarryForwardExpired          CarryForwardStatus = "EXPIRED"
	CarryForwardSuperseded       CarryForwardStatus = "SUPERSEDED"
)

// Open reports whether the credit can still be applied.
func (s CarryForwardStatus) Open() bool {
	return s == CarryForwardActive || s == CarryForwardPartiallyApplied
}

// CarryForwardApplication records a credit applied to a later settlement.
// Reversals are negative applications referencing the correcting settlement.
type CarryForwardApplication struct {
	TargetYear    int         `json:"target_year"`
	TargetMonth   int         `json:"target_month"`
	AmountApplied money.Money `json:"amount_applied"`
	SettlementID  string      `json:"settlement_id"`
	At            time.Time   `json:"at"`
}

// VatCarryForward is a VAT credit rolled into future periods.
type VatCarryForward struct {
	ID                 uuid.UUID                 `json:"id"`
	ClientID           string                    `json:"client_id"`
	SourceYear         int                       `json:"source_year"`
	SourceMonth        int                       `json:"source_month"`
	OriginalAmount     money.Money               `json:"original_amount"`
	RemainingAmount    money.Money               `json:"remaining_amount"`
	Status             CarryForwardStatus        `json:"status"`
	SourceSettlementID string                    `json:"source_settlement_id,omitempty"`
	Applications       []CarryForwardApplication `json:"applications"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// Source returns the period that produced the credit.
func (c *VatCarryForward) Source() dateutil.YearMonth {
	return dateutil.YearMonth{Year: c.SourceYear, Month: c.SourceMonth}
}

// AppliedTotal sums all applications, reversals included.
func (c *VatCarryForward) AppliedTotal() money.Money {
	total := money.Zero()
	for _, a := range c.Applications {
		total = total.Add(a.AmountApplied)
	}
	return total
}

// AppliedBy sums the net application attributed to one settlement.
func (c *VatCarryForward) AppliedBy(settlementID string) money.Money {
	total := money.Zero()
	for _, a := range c.Applications {
		if a.SettlementID == settlementID {
			total = total.Add(a.AmountApplied)
		}
	}
	return total
}

// RefreshStatus recomputes the status from balances, leaving terminal states alone.
func (c *VatCarryForward) RefreshStatus() {
	if c.Status == CarryForwardExpired || c.Status == CarryForwardSuperseded {
		return
	}
	switch {
	case c.RemainingAmount.IsZero():
		c.Status = CarryForwardFullyApplied
	case c.RemainingAmount.LessThan(c.OriginalAmount):
		c.Status = CarryForwardPartiallyApplied
	default:
		c.Status = CarryForwardActive
	}
}

// CheckInvariant verifies remaining == original - sum(applications) and remaining >= 0.
func (c *VatCarryForward) CheckInvariant() error {
	if c.RemainingAmount.IsNegative() {
		return InvariantViolation("VAT_CREDIT_NEGATIVE", "carry-forward %s has negative remaining %s", c.ID, c.RemainingAmount)
	}
	if !c.OriginalAmount.Sub(c.AppliedTotal()).Equal(c.RemainingAmount) {
		return InvariantViolation("VAT_CREDIT_MISMATCH", "carry-forward %s: original %s - applied %s != remaining %s",
			c.ID, c.OriginalAmount, c.AppliedTotal(), c.RemainingAmount)
	}
	return nil
}

// RefundElection chooses what happens to a VAT refund.
type RefundElection string

const (
	ElectCarryForward RefundElection = "CARRY_FORWARD"
	ElectRefund       RefundElection = "REFUND"
)

// Valid reports whether e is a known election. An empty election means carry forward.
func (e RefundElection) Valid() bool {
	return e == "" || e == ElectCarryForward || e == ElectRefund
}

// RefundTimeline is a statutory refund deadline option.
type RefundTimeline string

const (
	RefundStandard    RefundTimeline = "STANDARD"
	RefundAccelerated RefundTimeline = "ACCELERATED"
	RefundExtended    RefundTimeline = "EXTENDED"
)

// RefundOption describes one refund timeline and whether the client qualifies.
type RefundOption struct {
	Timeline RefundTimeline `json:"timeline"`
	Days     int            `json:"days"`
	DueDate  time.Time      `json:"due_date"`
	Eligible bool           `json:"eligible"`
	Reasons  []string       `json:"reasons,omitempty"`
}

// OutputBreakdown buckets output VAT for a period.
type OutputBreakdown struct {
	ByRate             map[string]VatAmounts `json:"by_rate"`
	IntraEUSupply      money.Money           `json:"intra_eu_supply_net"`
	Export             money.Money           `json:"export_net"`
	ReverseCharge      money.Money           `json:"reverse_charge_net"`
	IntraEUAcquisition VatAmounts            `json:"intra_eu_acquisition"`
	ImportServices     VatAmounts            `json:"import_services"`
	TotalNet           money.Money           `json:"total_net"`
	TotalVat           money.Money           `json:"total_vat"`
}

// InputBreakdown buckets deductible input VAT for a period.
type InputBreakdown struct {
	Deductible         VatAmounts  `json:"deductible"`
	IntraEUAcquisition VatAmounts  `json:"intra_eu_acquisition"`
	Import             VatAmounts  `json:"import"`
	ImportServices     VatAmounts  `json:"import_services"`
	TotalNet           money.Money `json:"total_net"`
	TotalVat           money.Money `json:"total_vat"`
}

// PlannedApplication is a carry-forward consumption decided by the settlement.
type PlannedApplication struct {
	CarryForwardID uuid.UUID   `json:"carry_forward_id"`
	Source         string      `json:"source"`
	Amount         money.Money `json:"amount"`
}

// VatSettlementInput is everything a period settlement needs from collaborators.
type VatSettlementInput struct {
	ClientID      string             `json:"client_id"`
	Period        dateutil.YearMonth `json:"period"`
	Transactions  []VatTransaction   `json:"transactions"`
	CarryForwards []VatCarryForward  `json:"carry_forwards"`
	Election      RefundElection     `json:"election"`
	Profile       ClientProfile      `json:"-"`
	FiledAt       time.Time          `json:"filed_at"`
}

// VatSettlementResult is the computed settlement for one period.
type VatSettlementResult struct {
	ClientID            string               `json:"client_id"`
	Period              dateutil.YearMonth   `json:"period"`
	Output              OutputBreakdown      `json:"output"`
	Input               InputBreakdown       `json:"input"`
	Difference          money.Money          `json:"difference"`
	CarryForwardTotal   money.Money          `json:"carry_forward_total"`
	AdjustedDifference  money.Money          `json:"adjusted_difference"`
	VatDue              money.Money          `json:"vat_due"`
	VatRefund           money.Money          `json:"vat_refund"`
	Applications        []PlannedApplication `json:"applications"`
	Election            RefundElection       `json:"election,omitempty"`
	NewCarryForward     money.Money          `json:"new_carry_forward"`
	RefundRequested     money.Money          `json:"refund_requested"`
	RefundOptions       []RefundOption       `json:"refund_options,omitempty"`
	TransactionsSettled int                  `json:"transactions_settled"`
}

// VatSettlement is a persisted settlement version for a period.
type VatSettlement struct {
	ID         uuid.UUID           `json:"id"`
	ClientID   string              `json:"client_id"`
	Period     dateutil.YearMonth  `json:"period"`
	Version    int                 `json:"version"`
	Superseded bool                `json:"superseded"`
	Result     VatSettlementResult `json:"result"`
	CreatedAt  time.Time           `json:"created_at"`
}
