package calculation

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// Refund deadlines in days, counted from the filing date.
const (
	StandardRefundDays    = 60
	AcceleratedRefundDays = 25
	ExtendedRefundDays    = 180
)

// VatCalculator handles per-transaction VAT and period settlement.
type VatCalculator struct {
	Catalog RateCatalog
	Logger  Logger
}

// NewVatCalculator creates a VAT calculator over the catalog.
func NewVatCalculator(cat RateCatalog, logger Logger) *VatCalculator {
	return &VatCalculator{Catalog: cat, Logger: orNop(logger)}
}

// CalculateTransaction derives net, VAT and gross from either net or gross.
// Only the final values are rounded; foreign-currency lines also get a PLN triple.
func (vc *VatCalculator) CalculateTransaction(in domain.VatLineInput) (*domain.VatLineResult, error) {
	if in.Date.IsZero() {
		return nil, domain.InvalidInput("date", "MISSING_DATE", "transaction date is required for the rate lookup")
	}
	if in.Amount.IsNegative() {
		return nil, domain.InvalidInput("amount", "NEGATIVE_AMOUNT", "amount must not be negative, got %s", in.Amount)
	}
	entry, err := vc.Catalog.Rate(domain.TaxVAT, in.RateCode, in.Date)
	if err != nil {
		return nil, err
	}
	rate := entry.Value

	var netExact, vatExact money.Money
	switch in.Kind {
	case domain.AmountNet:
		netExact = in.Amount
		vatExact = in.Amount.Percent(rate)
	case domain.AmountGross:
		netExact = in.Amount.Div(decimal.NewFromInt(1).Add(rate))
		vatExact = in.Amount.Sub(netExact)
	default:
		return nil, domain.InvalidInput("kind", "UNKNOWN_AMOUNT_KIND", "amount kind must be NET or GROSS, got %q", in.Kind)
	}

	res := &domain.VatLineResult{
		RateCode: in.RateCode,
		Rate:     rate,
		Currency: currencyOrPLN(in.Currency),
		Amounts:  triple(netExact, vatExact, in.Kind, in.Amount),
	}

	if res.Currency != "PLN" {
		if !in.ExchangeRate.IsPositive() {
			return nil, domain.InvalidInput("exchange_rate", "MISSING_EXCHANGE_RATE",
				"exchange rate for %s must be positive", res.Currency)
		}
		net := netExact.Mul(in.ExchangeRate).Round()
		vat := vatExact.Mul(in.ExchangeRate).Round()
		res.ExchangeRate = in.ExchangeRate
		res.PLN = &domain.VatAmounts{Net: net, Vat: vat, Gross: net.Add(vat)}
	}
	return res, nil
}

func currencyOrPLN(c string) string {
	if c == "" {
		return "PLN"
	}
	return c
}

// triple rounds the exact values. A given gross is kept as is and VAT absorbs the rounding.
func triple(netExact, vatExact money.Money, kind domain.AmountKind, amount money.Money) domain.VatAmounts {
	if kind == domain.AmountGross {
		gross := amount.Round()
		net := netExact.Round()
		return domain.VatAmounts{Net: net, Vat: gross.Sub(net), Gross: gross}
	}
	net := netExact.Round()
	vat := vatExact.Round()
	return domain.VatAmounts{Net: net, Vat: vat, Gross: net.Add(vat)}
}

// ExpandTransaction turns a self-assessed BOTH transaction into a matched OUTPUT/INPUT
// pair at the standard rate. Other transactions are returned unchanged.
func (vc *VatCalculator) ExpandTransaction(tx domain.VatTransaction) ([]domain.VatTransaction, error) {
	if tx.Direction != domain.VatBoth {
		return []domain.VatTransaction{tx}, nil
	}
	if !tx.Class.SelfAssessed() {
		return nil, domain.InvalidInput("class", "NOT_SELF_ASSESSED",
			"direction BOTH is only valid for intra-EU acquisition or import of services, got %s", tx.Class)
	}
	rate, err := vc.Catalog.Rate(domain.TaxVAT, domain.RateVATStandard, tx.Period.End())
	if err != nil {
		return nil, err
	}
	vat := tx.NetAmount.Percent(rate.Value).Round()
	pairID := tx.ID
	if pairID == uuid.Nil {
		pairID = uuid.New()
	}

	out := tx
	out.ID = uuid.New()
	out.Direction = domain.VatOutput
	out.RateCode = domain.RateVATStandard
	out.VatAmount = vat
	out.PairID = &pairID

	in := out
	in.ID = uuid.New()
	in.Direction = domain.VatInput

	vc.Logger.Debugf("self-assessed %s %s expanded into pair %s (vat %s)", tx.Class, tx.NetAmount, pairID, vat)
	return []domain.VatTransaction{out, in}, nil
}

// CorrectTransaction creates a correcting transaction for the given deltas and returns
// the original flipped to CORRECTED. The original is kept and still settles.
func (vc *VatCalculator) CorrectTransaction(original domain.VatTransaction, deltaNet, deltaVat money.Money, period dateutil.YearMonth) (domain.VatTransaction, domain.VatTransaction, error) {
	if original.Status == domain.VatTxCancelled {
		return domain.VatTransaction{}, domain.VatTransaction{}, domain.InvariantViolation("TRANSACTION_CANCELLED",
			"transaction %s is cancelled and cannot be corrected", original.ID)
	}
	if original.PairID != nil {
		return domain.VatTransaction{}, domain.VatTransaction{}, domain.InvalidInput("id", "PAIRED_TRANSACTION",
			"transaction %s is half of a self-assessed pair; correct the pair instead", original.ID)
	}
	if period.Before(original.Period) {
		return domain.VatTransaction{}, domain.VatTransaction{}, domain.InvalidInput("period", "CORRECTION_BEFORE_ORIGINAL",
			"correction period %s precedes original period %s", period, original.Period)
	}
	corr := newCorrection(original, deltaNet, deltaVat, period)
	original.Status = domain.VatTxCorrected
	return original, corr, nil
}

// CorrectPair corrects both halves of a self-assessed pair with one net delta,
// recomputing the VAT delta at the standard rate so the pair stays neutral.
func (vc *VatCalculator) CorrectPair(output, input domain.VatTransaction, deltaNet money.Money, period dateutil.YearMonth) ([]domain.VatTransaction, error) {
	if output.PairID == nil || input.PairID == nil || *output.PairID != *input.PairID ||
		output.Direction != domain.VatOutput || input.Direction != domain.VatInput {
		return nil, domain.InvalidInput("pair_id", "NOT_A_PAIR", "transactions %s and %s are not a matched pair", output.ID, input.ID)
	}
	rate, err := vc.Catalog.Rate(domain.TaxVAT, domain.RateVATStandard, period.End())
	if err != nil {
		return nil, err
	}
	deltaVat := deltaNet.Percent(rate.Value).Round()
	pairID := uuid.New()

	outCorr := newCorrection(output, deltaNet, deltaVat, period)
	outCorr.PairID = &pairID
	inCorr := newCorrection(input, deltaNet, deltaVat, period)
	inCorr.PairID = &pairID

	output.Status = domain.VatTxCorrected
	input.Status = domain.VatTxCorrected
	return []domain.VatTransaction{output, input, outCorr, inCorr}, nil
}

func newCorrection(original domain.VatTransaction, deltaNet, deltaVat money.Money, period dateutil.YearMonth) domain.VatTransaction {
	origID := original.ID
	return domain.VatTransaction{
		ID:                    uuid.New(),
		ClientID:              original.ClientID,
		Direction:             original.Direction,
		Class:                 original.Class,
		RateCode:              original.RateCode,
		NetAmount:             deltaNet,
		VatAmount:             deltaVat,
		Period:                period,
		IsCorrection:          true,
		CorrectsTransactionID: &origID,
		Status:                domain.VatTxActive,
	}
}

// Settle computes the period breakdown, applies older credits oldest-first and
// derives the due or refund. It never mutates the carry-forward records passed in.
func (vc *VatCalculator) Settle(in domain.VatSettlementInput) (*domain.VatSettlementResult, error) {
	res := &domain.VatSettlementResult{
		ClientID: in.ClientID,
		Period:   in.Period,
		Output:   domain.OutputBreakdown{ByRate: make(map[string]domain.VatAmounts)},
	}

	pairs := make(map[uuid.UUID]money.Money)
	for _, raw := range in.Transactions {
		if !raw.Status.Settles() {
			continue
		}
		if raw.ClientID != in.ClientID {
			return nil, domain.InvalidInput("client_id", "CLIENT_MISMATCH", "transaction %s belongs to client %s", raw.ID, raw.ClientID)
		}
		if raw.Period != in.Period {
			return nil, domain.InvalidInput("period", "PERIOD_MISMATCH", "transaction %s is in period %s, settling %s", raw.ID, raw.Period, in.Period)
		}
		expanded, err := vc.ExpandTransaction(raw)
		if err != nil {
			return nil, err
		}
		for _, tx := range expanded {
			if err := addToBreakdown(res, tx); err != nil {
				return nil, err
			}
			if tx.PairID != nil {
				signed := tx.VatAmount
				if tx.Direction == domain.VatInput {
					signed = signed.Neg()
				}
				pairs[*tx.PairID] = pairs[*tx.PairID].Add(signed)
			}
			res.TransactionsSettled++
		}
	}
	for id, imbalance := range pairs {
		if !imbalance.IsZero() {
			return nil, domain.InvariantViolation("PAIR_ASYMMETRY", "self-assessed pair %s is not VAT-neutral (imbalance %s)", id, imbalance)
		}
	}

	finishBreakdowns(res)
	res.Difference = res.Output.TotalVat.Sub(res.Input.TotalVat)

	credits := openCredits(in)
	for _, cf := range credits {
		res.CarryForwardTotal = res.CarryForwardTotal.Add(cf.RemainingAmount)
	}
	res.AdjustedDifference = res.Difference.Sub(res.CarryForwardTotal)
	if res.AdjustedDifference.IsPositive() {
		res.VatDue = res.AdjustedDifference
		res.VatRefund = money.Zero()
	} else {
		res.VatDue = money.Zero()
		res.VatRefund = res.AdjustedDifference.Abs()
	}

	// Credits are consumed only up to the period's own positive difference.
	// With a cash refund the remaining older credits are paid out as well.
	res.Election = in.Election
	if res.VatRefund.IsPositive() && res.Election == "" {
		res.Election = domain.ElectCarryForward
	}
	budget := res.Difference.ClampZero()
	if res.VatRefund.IsPositive() && res.Election == domain.ElectRefund {
		budget = res.CarryForwardTotal
	}
	for _, cf := range credits {
		if !budget.IsPositive() {
			break
		}
		amount := money.Min(budget, cf.RemainingAmount)
		budget = budget.Sub(amount)
		res.Applications = append(res.Applications, domain.PlannedApplication{
			CarryForwardID: cf.ID,
			Source:         cf.Source().String(),
			Amount:         amount,
		})
	}

	res.NewCarryForward = money.Zero()
	res.RefundRequested = money.Zero()
	if res.VatRefund.IsPositive() {
		switch res.Election {
		case domain.ElectCarryForward:
			res.NewCarryForward = res.Difference.Neg().ClampZero()
		case domain.ElectRefund:
			res.RefundRequested = res.VatRefund
		default:
			return nil, domain.InvalidInput("election", "UNKNOWN_ELECTION", "unknown refund election %q", in.Election)
		}
		res.RefundOptions = vc.RefundOptions(in, res)
	}

	vc.Logger.Debugf("VAT %s %s: output %s, input %s, credits %s, due %s, refund %s",
		in.ClientID, in.Period, res.Output.TotalVat, res.Input.TotalVat, res.CarryForwardTotal, res.VatDue, res.VatRefund)
	return res, nil
}

func openCredits(in domain.VatSettlementInput) []domain.VatCarryForward {
	var out []domain.VatCarryForward
	for _, cf := range in.CarryForwards {
		if cf.ClientID != in.ClientID || !cf.Status.Open() || !cf.RemainingAmount.IsPositive() {
			continue
		}
		if !cf.Source().Before(in.Period) {
			continue
		}
		out = append(out, cf)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source() != out[j].Source() {
			return out[i].Source().Before(out[j].Source())
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func addAmounts(a domain.VatAmounts, tx domain.VatTransaction) domain.VatAmounts {
	a.Net = a.Net.Add(tx.NetAmount)
	a.Vat = a.Vat.Add(tx.VatAmount)
	a.Gross = a.Net.Add(a.Vat)
	return a
}

func addToBreakdown(res *domain.VatSettlementResult, tx domain.VatTransaction) error {
	switch tx.Direction {
	case domain.VatOutput:
		o := &res.Output
		switch tx.Class {
		case domain.ClassDomestic:
			o.ByRate[tx.RateCode] = addAmounts(o.ByRate[tx.RateCode], tx)
		case domain.ClassIntraEUSupply:
			o.IntraEUSupply = o.IntraEUSupply.Add(tx.NetAmount)
		case domain.ClassExport:
			o.Export = o.Export.Add(tx.NetAmount)
		case domain.ClassReverseCharge:
			o.ReverseCharge = o.ReverseCharge.Add(tx.NetAmount)
		case domain.ClassIntraEUAcquisition:
			o.IntraEUAcquisition = addAmounts(o.IntraEUAcquisition, tx)
		case domain.ClassImportServices:
			o.ImportServices = addAmounts(o.ImportServices, tx)
		default:
			return domain.InvalidInput("class", "CLASS_DIRECTION", "class %s cannot be an output transaction (%s)", tx.Class, tx.ID)
		}
		o.TotalNet = o.TotalNet.Add(tx.NetAmount)
		o.TotalVat = o.TotalVat.Add(tx.VatAmount)
	case domain.VatInput:
		i := &res.Input
		switch tx.Class {
		case domain.ClassDomestic, domain.ClassReverseCharge:
			i.Deductible = addAmounts(i.Deductible, tx)
		case domain.ClassIntraEUAcquisition:
			i.IntraEUAcquisition = addAmounts(i.IntraEUAcquisition, tx)
		case domain.ClassImport:
			i.Import = addAmounts(i.Import, tx)
		case domain.ClassImportServices:
			i.ImportServices = addAmounts(i.ImportServices, tx)
		default:
			return domain.InvalidInput("class", "CLASS_DIRECTION", "class %s cannot be an input transaction (%s)", tx.Class, tx.ID)
		}
		i.TotalNet = i.TotalNet.Add(tx.NetAmount)
		i.TotalVat = i.TotalVat.Add(tx.VatAmount)
	default:
		return domain.InvalidInput("direction", "UNKNOWN_DIRECTION", "unknown direction %q on %s", tx.Direction, tx.ID)
	}
	return nil
}

func finishBreakdowns(res *domain.VatSettlementResult) {
	for code, a := range res.Output.ByRate {
		res.Output.ByRate[code] = roundAmounts(a)
	}
	o := &res.Output
	o.IntraEUSupply, o.Export, o.ReverseCharge = o.IntraEUSupply.Round(), o.Export.Round(), o.ReverseCharge.Round()
	o.IntraEUAcquisition, o.ImportServices = roundAmounts(o.IntraEUAcquisition), roundAmounts(o.ImportServices)
	o.TotalNet, o.TotalVat = o.TotalNet.Round(), o.TotalVat.Round()

	i := &res.Input
	i.Deductible, i.IntraEUAcquisition = roundAmounts(i.Deductible), roundAmounts(i.IntraEUAcquisition)
	i.Import, i.ImportServices = roundAmounts(i.Import), roundAmounts(i.ImportServices)
	i.TotalNet, i.TotalVat = i.TotalNet.Round(), i.TotalVat.Round()
}

func roundAmounts(a domain.VatAmounts) domain.VatAmounts {
	return domain.VatAmounts{Net: a.Net.Round(), Vat: a.Vat.Round(), Gross: a.Gross.Round()}
}

// taxableSales is the net of supplies that count as taxable sales for the refund rules.
func taxableSales(o domain.OutputBreakdown) money.Money {
	total := o.IntraEUSupply.Add(o.Export).Add(o.ReverseCharge)
	for _, a := range o.ByRate {
		total = total.Add(a.Net)
	}
	return total
}

// RefundOptions lists the refund timelines with eligibility and reasons.
// Every timeline requires an active VAT payer. Accelerated refunds also check the
// client's compliance record; extended refunds need a period without taxable sales.
func (vc *VatCalculator) RefundOptions(in domain.VatSettlementInput, res *domain.VatSettlementResult) []domain.RefundOption {
	filed := in.FiledAt
	if filed.IsZero() {
		filed = nowFunc()
	}
	p := in.Profile

	var common []string
	if !p.ActiveVATPayer {
		common = append(common, "client is not an active VAT payer")
	}

	standard := option(domain.RefundStandard, StandardRefundDays, filed, common)

	accelerated := append([]string(nil), common...)
	if p.LateFilingsLast12M > 0 {
		accelerated = append(accelerated, fmt.Sprintf("%d late filings in the last 12 months", p.LateFilingsLast12M))
	}
	if p.OutstandingDues {
		accelerated = append(accelerated, "outstanding tax dues")
	}
	if !p.VATPayerVerified {
		accelerated = append(accelerated, "VAT payer status not verified")
	}

	extended := append([]string(nil), common...)
	if taxableSales(res.Output).IsPositive() {
		extended = append(extended, "period had taxable sales")
	}

	opts := []domain.RefundOption{
		standard,
		option(domain.RefundAccelerated, AcceleratedRefundDays, filed, accelerated),
		option(domain.RefundExtended, ExtendedRefundDays, filed, extended),
	}
	for _, o := range opts {
		if !o.Eligible {
			vc.Logger.Infof("refund timeline %s unavailable for %s: %v", o.Timeline, in.ClientID, o.Reasons)
		}
	}
	return opts
}

func option(t domain.RefundTimeline, days int, filed time.Time, reasons []string) domain.RefundOption {
	return domain.RefundOption{
		Timeline: t,
		Days:     days,
		DueDate:  dateutil.AddDays(filed, days),
		Eligible: len(reasons) == 0,
		Reasons:  reasons,
	}
}
