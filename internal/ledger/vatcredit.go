package ledger

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// VatCreditLedger tracks VAT credits carried into later periods.
type VatCreditLedger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewVatCreditLedger creates a VAT credit ledger over the store.
func NewVatCreditLedger(store Store, logger *slog.Logger) *VatCreditLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &VatCreditLedger{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Update runs fn in a single ledger transaction. The *Tx methods called with
// the supplied Tx commit or roll back together.
func (v *VatCreditLedger) Update(ctx context.Context, fn func(context.Context, Tx) error) error {
	return v.store.WithTx(ctx, fn)
}

// Available returns the open credits usable in period, oldest first, and their total.
func (v *VatCreditLedger) Available(ctx context.Context, clientID string, period dateutil.YearMonth) ([]domain.VatCarryForward, money.Money, error) {
	var (
		out   []domain.VatCarryForward
		total money.Money
	)
	err := v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, total, err = v.AvailableTx(ctx, tx, clientID, period)
		return err
	})
	return out, total, err
}

// AvailableTx is Available inside an open ledger transaction.
func (v *VatCreditLedger) AvailableTx(ctx context.Context, tx Tx, clientID string, period dateutil.YearMonth) ([]domain.VatCarryForward, money.Money, error) {
	total := money.Zero()
	credits, err := tx.CarryForwards(ctx, clientID)
	if err != nil {
		return nil, total, err
	}
	sortCredits(credits)
	var out []domain.VatCarryForward
	for _, cf := range credits {
		if cf.Status.Open() && cf.Source().Before(period) && cf.RemainingAmount.IsPositive() {
			out = append(out, *cf)
			total = total.Add(cf.RemainingAmount)
		}
	}
	return out, total, nil
}

// All lists every credit of the client oldest first.
func (v *VatCreditLedger) All(ctx context.Context, clientID string) ([]domain.VatCarryForward, error) {
	var out []domain.VatCarryForward
	err := v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		credits, err := tx.CarryForwards(ctx, clientID)
		if err != nil {
			return err
		}
		sortCredits(credits)
		for _, cf := range credits {
			out = append(out, *cf)
		}
		return nil
	})
	return out, err
}

// Apply books the planned applications of a settlement against the credits.
// Each settlement applies a credit at most once.
func (v *VatCreditLedger) Apply(ctx context.Context, settlementID string, period dateutil.YearMonth, plan []domain.PlannedApplication) error {
	if len(plan) == 0 {
		return nil
	}
	return v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return v.ApplyTx(ctx, tx, settlementID, period, plan)
	})
}

// ApplyTx is Apply inside an open ledger transaction.
func (v *VatCreditLedger) ApplyTx(ctx context.Context, tx Tx, settlementID string, period dateutil.YearMonth, plan []domain.PlannedApplication) error {
	for _, p := range plan {
		cf, err := tx.CarryForward(ctx, p.CarryForwardID)
		if err != nil {
			return err
		}
		switch {
		case !cf.AppliedBy(settlementID).IsZero():
			return domain.Conflict("VAT_CREDIT_ALREADY_APPLIED", "settlement %s already applied carry-forward %s", settlementID, cf.ID)
		case !cf.Status.Open():
			return domain.InvariantViolation("VAT_CREDIT_CLOSED", "carry-forward %s is %s", cf.ID, cf.Status)
		case !cf.Source().Before(period):
			return domain.InvariantViolation("VAT_CREDIT_NOT_YET_AVAILABLE", "carry-forward %s from %s cannot apply to %s", cf.ID, cf.Source(), period)
		case !p.Amount.IsPositive():
			return domain.InvalidInput("amount", "NON_POSITIVE_AMOUNT", "application must be positive, got %s", p.Amount)
		case p.Amount.GreaterThan(cf.RemainingAmount):
			return domain.InvariantViolation("VAT_CREDIT_OVERDRAWN", "cannot apply %s from carry-forward %s with %s remaining",
				p.Amount, cf.ID, cf.RemainingAmount)
		}
		cf.Applications = append(cf.Applications, domain.CarryForwardApplication{
			TargetYear: period.Year, TargetMonth: period.Month, AmountApplied: p.Amount, SettlementID: settlementID, At: v.now(),
		})
		cf.RemainingAmount = cf.RemainingAmount.Sub(p.Amount)
		cf.RefreshStatus()
		if err := cf.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveCarryForward(ctx, cf); err != nil {
			return err
		}
	}
	return nil
}

// Register records this period's excess input VAT as a new credit.
func (v *VatCreditLedger) Register(ctx context.Context, clientID string, period dateutil.YearMonth, amount money.Money, settlementID string) (*domain.VatCarryForward, error) {
	var cf *domain.VatCarryForward
	err := v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cf, err = v.RegisterTx(ctx, tx, clientID, period, amount, settlementID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cf, nil
}

// RegisterTx is Register inside an open ledger transaction.
func (v *VatCreditLedger) RegisterTx(ctx context.Context, tx Tx, clientID string, period dateutil.YearMonth, amount money.Money, settlementID string) (*domain.VatCarryForward, error) {
	if !amount.IsPositive() {
		return nil, domain.InvalidInput("amount", "NON_POSITIVE_AMOUNT", "carry-forward must be positive, got %s", amount)
	}
	credits, err := tx.CarryForwards(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, existing := range credits {
		if existing.SourceSettlementID == settlementID && existing.Status != domain.CarryForwardSuperseded {
			return nil, domain.Conflict("VAT_CREDIT_ALREADY_REGISTERED", "settlement %s already registered carry-forward %s", settlementID, existing.ID)
		}
	}
	cf := &domain.VatCarryForward{
		ID:                 uuid.New(),
		ClientID:           clientID,
		SourceYear:         period.Year,
		SourceMonth:        period.Month,
		OriginalAmount:     amount.Round(),
		RemainingAmount:    amount.Round(),
		Status:             domain.CarryForwardActive,
		SourceSettlementID: settlementID,
		CreatedAt:          v.now(),
	}
	if err := tx.SaveCarryForward(ctx, cf); err != nil {
		return nil, err
	}
	v.logger.Info("vat credit registered", slog.String("client", clientID), slog.String("period", period.String()),
		slog.String("amount", cf.OriginalAmount.String()))
	return cf, nil
}

// Reverse undoes a settlement: its applications are offset by negative
// entries and the credit it registered is superseded. A registered credit
// that later periods already used cannot be reversed.
func (v *VatCreditLedger) Reverse(ctx context.Context, clientID, settlementID, correctionID string) error {
	return v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return v.ReverseTx(ctx, tx, clientID, settlementID, correctionID)
	})
}

// ReverseTx is Reverse inside an open ledger transaction.
func (v *VatCreditLedger) ReverseTx(ctx context.Context, tx Tx, clientID, settlementID, correctionID string) error {
	credits, err := tx.CarryForwards(ctx, clientID)
	if err != nil {
		return err
	}
	for _, cf := range credits {
		if cf.SourceSettlementID == settlementID && cf.Status != domain.CarryForwardSuperseded {
			if cf.AppliedTotal().IsPositive() {
				return domain.InvariantViolation("VAT_CREDIT_ALREADY_APPLIED",
					"carry-forward %s from settlement %s is already applied (%s)", cf.ID, settlementID, cf.AppliedTotal())
			}
			cf.Status = domain.CarryForwardSuperseded
			if err := tx.SaveCarryForward(ctx, cf); err != nil {
				return err
			}
			continue
		}
		applied := cf.AppliedBy(settlementID)
		if !applied.IsPositive() {
			continue
		}
		last := lastApplication(cf, settlementID)
		cf.Applications = append(cf.Applications, domain.CarryForwardApplication{
			TargetYear: last.TargetYear, TargetMonth: last.TargetMonth, AmountApplied: applied.Neg(),
			SettlementID: settlementID, At: v.now(),
		})
		cf.RemainingAmount = cf.RemainingAmount.Add(applied)
		cf.RefreshStatus()
		if err := cf.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveCarryForward(ctx, cf); err != nil {
			return err
		}
		v.logger.Info("vat credit application reversed", slog.String("carry_forward", cf.ID.String()),
			slog.String("amount", applied.String()), slog.String("correction", correctionID))
	}
	return nil
}

// Expire closes open credits older than maxAgeMonths as seen from asOf.
func (v *VatCreditLedger) Expire(ctx context.Context, clientID string, asOf dateutil.YearMonth, maxAgeMonths int) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	err := v.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		expired, err = v.ExpireTx(ctx, tx, clientID, asOf, maxAgeMonths)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ExpireTx is Expire inside an open ledger transaction.
func (v *VatCreditLedger) ExpireTx(ctx context.Context, tx Tx, clientID string, asOf dateutil.YearMonth, maxAgeMonths int) ([]uuid.UUID, error) {
	if maxAgeMonths <= 0 {
		return nil, domain.InvalidInput("max_age_months", "NON_POSITIVE_AGE", "max age must be positive, got %d", maxAgeMonths)
	}
	credits, err := tx.CarryForwards(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sortCredits(credits)
	var expired []uuid.UUID
	for _, cf := range credits {
		if !cf.Status.Open() || dateutil.MonthsBetween(cf.Source(), asOf) <= maxAgeMonths {
			continue
		}
		cf.Status = domain.CarryForwardExpired
		if err := tx.SaveCarryForward(ctx, cf); err != nil {
			return nil, err
		}
		expired = append(expired, cf.ID)
	}
	if len(expired) > 0 {
		v.logger.Warn("vat credits expired", slog.String("client", clientID), slog.Int("count", len(expired)), slog.String("as_of", asOf.String()))
	}
	return expired, nil
}

func sortCredits(credits []*domain.VatCarryForward) {
	sort.SliceStable(credits, func(i, j int) bool {
		a, b := credits[i].Source(), credits[j].Source()
		if a != b {
			return a.Before(b)
		}
		return credits[i].CreatedAt.Before(credits[j].CreatedAt)
	})
}

func lastApplication(cf *domain.VatCarryForward, settlementID string) domain.CarryForwardApplication {
	var last domain.CarryForwardApplication
	for _, a := range cf.Applications {
		if a.SettlementID == settlementID {
			last = a
		}
	}
	return last
}
