package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pltax/settlement-engine/internal/calculation"
	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/internal/ledger"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// ErrServiceNotConfigured is returned when a required dependency is missing.
var ErrServiceNotConfigured = errors.New("settlement: service not configured")

// Dependencies wires the service to its collaborators.
type Dependencies struct {
	Engine       *calculation.CalculationEngine
	Losses       *ledger.LossLedger
	Credits      *ledger.VatCreditLedger
	Locker       ledger.Locker
	Declarations DeclarationStore
	Transactions TransactionStore
	Settlements  SettlementStore
	Profiles     ProfileProvider
	Logger       *slog.Logger
}

// Config tunes period-close behaviour.
type Config struct {
	// VatCreditMaxAgeMonths expires older credits before settling; zero disables expiry.
	VatCreditMaxAgeMonths int
	BatchWorkers          int
}

// Service closes tax periods: it prices declarations and VAT settlements and
// books their ledger effects under a per-client lock.
type Service struct {
	deps     Dependencies
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the period-close service.
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Engine == nil || deps.Losses == nil || deps.Credits == nil || deps.Locker == nil ||
		deps.Declarations == nil || deps.Transactions == nil || deps.Settlements == nil || deps.Profiles == nil {
		return nil, ErrServiceNotConfigured
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	return &Service{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.InvalidInput(toSnake(fe.Field()), "VALIDATION_FAILED", "%s failed %q", fe.Field(), fe.Tag())
	}
	return domain.InvalidInput("", "VALIDATION_FAILED", "%v", err)
}

func toSnake(field string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range field {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return b.String()
}

// withLock runs fn holding the ledger lock for one client and tax type.
func (s *Service) withLock(ctx context.Context, clientID string, taxType domain.TaxType, fn func() error) error {
	key := ledger.LockKey(clientID, taxType)
	release, err := s.deps.Locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Error("release ledger lock", slog.String("key", key), slog.Any("error", rerr))
		}
	}()
	return fn()
}

func declarationKey(in domain.IncomeInput) domain.PeriodKey {
	return domain.PeriodKey{ClientID: in.ClientID, TaxType: in.Regime.LedgerTaxType(), TaxYear: in.TaxYear, Period: in.Period}
}

// CalculateIncome prices a period and stores it as a CALCULATED declaration.
// Recalculating refreshes the same declaration until it is submitted.
func (s *Service) CalculateIncome(ctx context.Context, in domain.IncomeInput) (*domain.Declaration, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := domain.ParseRegime(string(in.Regime)); err != nil {
		return nil, err
	}

	key := declarationKey(in)
	d, err := s.deps.Declarations.Current(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		now := s.now()
		d = &domain.Declaration{
			ID: uuid.New(), ClientID: in.ClientID, TaxType: key.TaxType, TaxYear: in.TaxYear, Period: in.Period,
			Status: domain.DeclarationDraft, CreatedAt: now, UpdatedAt: now,
		}
	case err != nil:
		return nil, err
	case !d.Mutable():
		return nil, domain.Conflict("DECLARATION_ALREADY_FILED",
			"declaration %s for %s %d/%d is %s; file a correction instead", d.ID, in.ClientID, in.TaxYear, in.Period, d.Status)
	}

	if err := s.price(ctx, d, in); err != nil {
		return nil, err
	}
	if err := d.Transition(domain.DeclarationCalculated, s.now()); err != nil {
		return nil, err
	}
	if err := s.deps.Declarations.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save declaration %s: %w", d.ID, err)
	}
	return d, nil
}

// price runs the calculator against the current ledger balance. A correction
// sees the balance as if the corrected declaration had never consumed losses.
func (s *Service) price(ctx context.Context, d *domain.Declaration, in domain.IncomeInput) error {
	profile, err := s.deps.Profiles.Profile(ctx, in.ClientID)
	if err != nil {
		return err
	}
	available := money.Zero()
	if in.ApplyLoss && in.Regime.AllowsLossOffset() {
		taxType := in.Regime.LedgerTaxType()
		if d.CorrectsID != nil {
			available, err = s.deps.Losses.AvailableBalanceExcluding(ctx, in.ClientID, taxType, in.TaxYear, d.CorrectsID.String())
		} else {
			available, err = s.deps.Losses.GetAvailableBalance(ctx, in.ClientID, taxType, in.TaxYear)
		}
		if err != nil {
			return err
		}
	}
	res, err := s.deps.Engine.CalculateIncome(in, &profile, available)
	if err != nil {
		return err
	}
	d.ApplyResult(in, res)
	return nil
}

// Submit files a CALCULATED declaration and books its ledger effects exactly once.
// For a correction the corrected declaration's effects are reversed first. The
// reversal, consumption and registration share one ledger transaction.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*domain.Declaration, error) {
	d, err := s.deps.Declarations.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.withLock(ctx, d.ClientID, d.TaxType, func() error {
		cur, err := s.deps.Declarations.Get(ctx, id)
		if err != nil {
			return err
		}
		d = cur
		if d.Status != domain.DeclarationCalculated {
			return domain.InvariantViolation("DECLARATION_IMMUTABLE", "declaration %s is %s and cannot be submitted", d.ID, d.Status)
		}
		filed := *d
		if err := filed.Transition(domain.DeclarationSubmitted, s.now()); err != nil {
			return err
		}

		ref := d.ID.String()
		// Monthly advances only price against the ledger; the annual return books it.
		annual := d.Period == 0
		err = s.deps.Losses.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if d.CorrectsID != nil {
				if err := s.deps.Losses.ReverseTx(ctx, tx, d.ClientID, d.TaxType, d.CorrectsID.String(), ref); err != nil {
					return err
				}
			}
			if annual && d.LossApplied.IsPositive() {
				if _, err := s.deps.Losses.ConsumeTx(ctx, tx, d.ClientID, d.TaxType, d.TaxYear, d.LossApplied, ref); err != nil {
					return err
				}
			}
			if annual && d.LossIncurred.IsPositive() {
				if _, err := s.deps.Losses.RegisterTx(ctx, tx, d.ClientID, d.TaxType, d.TaxYear, d.LossIncurred, ref); err != nil {
					return err
				}
			}
			// Saved last: a failed save rolls the ledger back with it.
			return s.deps.Declarations.Save(ctx, &filed)
		})
		if err != nil {
			return err
		}
		d = &filed
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("declaration submitted", slog.String("id", d.ID.String()), slog.String("client", d.ClientID),
		slog.Int("year", d.TaxYear), slog.Int("period", d.Period), slog.String("tax_due", d.TaxDue.String()))
	return d, nil
}

// Accept records the authority's acceptance of a submitted declaration.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*domain.Declaration, error) {
	d, err := s.deps.Declarations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.Transition(domain.DeclarationAccepted, s.now()); err != nil {
		return nil, err
	}
	if err := s.deps.Declarations.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Correct prices a new version of a filed declaration. The original becomes
// CORRECTED; its ledger effects are reversed when the correction is submitted.
func (s *Service) Correct(ctx context.Context, originalID uuid.UUID, in domain.IncomeInput) (*domain.Declaration, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	orig, err := s.deps.Declarations.Get(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if declarationKey(in) != orig.Key() {
		return nil, domain.InvalidInput("period", "CORRECTION_SLOT_MISMATCH",
			"correction of %s must target %s %d/%d", orig.ID, orig.TaxType, orig.TaxYear, orig.Period)
	}

	now := s.now()
	origID := orig.ID
	d := &domain.Declaration{
		ID: uuid.New(), ClientID: orig.ClientID, TaxType: orig.TaxType, TaxYear: orig.TaxYear, Period: orig.Period,
		Status: domain.DeclarationDraft, CorrectionNumber: orig.CorrectionNumber + 1, CorrectsID: &origID,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.price(ctx, d, in); err != nil {
		return nil, err
	}
	if err := orig.Transition(domain.DeclarationCorrected, now); err != nil {
		return nil, err
	}
	if err := d.Transition(domain.DeclarationCalculated, now); err != nil {
		return nil, err
	}
	orig.CorrectedByID = &d.ID
	if err := s.deps.Declarations.Save(ctx, orig); err != nil {
		return nil, err
	}
	if err := s.deps.Declarations.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("declaration corrected", slog.String("original", orig.ID.String()), slog.String("correction", d.ID.String()),
		slog.Int("number", d.CorrectionNumber))
	return d, nil
}

// RecordTransactions stores VAT transactions, expanding self-assessed ones into pairs.
func (s *Service) RecordTransactions(ctx context.Context, txs ...domain.VatTransaction) ([]domain.VatTransaction, error) {
	var out []domain.VatTransaction
	for _, tx := range txs {
		if tx.ClientID == "" {
			return nil, domain.InvalidInput("client_id", "MISSING_CLIENT", "transaction has no client")
		}
		if !tx.Class.Valid() {
			return nil, domain.InvalidInput("class", "UNKNOWN_CLASS", "unknown VAT class %q", tx.Class)
		}
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		if tx.Status == "" {
			tx.Status = domain.VatTxActive
		}
		expanded, err := s.deps.Engine.VAT.ExpandTransaction(tx)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	if err := s.deps.Transactions.Save(ctx, out...); err != nil {
		return nil, err
	}
	return out, nil
}

// CorrectTransaction books a correcting entry in period for a stored transaction.
// Paired self-assessed transactions are corrected together.
func (s *Service) CorrectTransaction(ctx context.Context, id uuid.UUID, deltaNet, deltaVat money.Money, period dateutil.YearMonth) ([]domain.VatTransaction, error) {
	orig, err := s.deps.Transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var changed []domain.VatTransaction
	if orig.PairID == nil {
		corrected, corr, err := s.deps.Engine.VAT.CorrectTransaction(orig, deltaNet, deltaVat, period)
		if err != nil {
			return nil, err
		}
		changed = []domain.VatTransaction{corrected, corr}
	} else {
		siblings, err := s.deps.Transactions.Transactions(ctx, orig.ClientID, orig.Period)
		if err != nil {
			return nil, err
		}
		var output, input *domain.VatTransaction
		for i := range siblings {
			if siblings[i].PairID == nil || *siblings[i].PairID != *orig.PairID {
				continue
			}
			if siblings[i].Direction == domain.VatOutput {
				output = &siblings[i]
			} else {
				input = &siblings[i]
			}
		}
		if output == nil || input == nil {
			return nil, domain.InvariantViolation("PAIR_INCOMPLETE", "pair %s of transaction %s is incomplete", *orig.PairID, orig.ID)
		}
		if changed, err = s.deps.Engine.VAT.CorrectPair(*output, *input, deltaNet, period); err != nil {
			return nil, err
		}
	}
	if err := s.deps.Transactions.Save(ctx, changed...); err != nil {
		return nil, err
	}
	return changed, nil
}

func checkElection(election domain.RefundElection) error {
	if !election.Valid() {
		return domain.InvalidInput("election", "UNKNOWN_ELECTION", "unknown refund election %q", election)
	}
	return nil
}

// CloseVatPeriod settles a period for the first time and books its credit movements.
func (s *Service) CloseVatPeriod(ctx context.Context, clientID string, period dateutil.YearMonth, election domain.RefundElection, filedAt time.Time) (*domain.VatSettlement, error) {
	if err := checkElection(election); err != nil {
		return nil, err
	}
	var st *domain.VatSettlement
	err := s.withLock(ctx, clientID, domain.TaxVAT, func() error {
		prev, err := s.deps.Settlements.Latest(ctx, clientID, period)
		switch {
		case err == nil:
			return domain.Conflict("VAT_PERIOD_CLOSED", "period %s of %s is already settled (version %d); correct it instead",
				period, clientID, prev.Version)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		st, err = s.settle(ctx, clientID, period, election, filedAt, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// CorrectVatPeriod replaces the latest settlement with a new version: the
// previous version's credit movements are reversed and the period is replayed.
// Nothing changes when the replay fails.
func (s *Service) CorrectVatPeriod(ctx context.Context, clientID string, period dateutil.YearMonth, election domain.RefundElection, filedAt time.Time) (*domain.VatSettlement, error) {
	if err := checkElection(election); err != nil {
		return nil, err
	}
	var st *domain.VatSettlement
	err := s.withLock(ctx, clientID, domain.TaxVAT, func() error {
		prev, err := s.deps.Settlements.Latest(ctx, clientID, period)
		if err != nil {
			return err
		}
		st, err = s.settle(ctx, clientID, period, election, filedAt, prev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// settle prices the period and books its credit movements in one ledger
// transaction. When prev is set its movements are reversed in the same
// transaction and it is marked superseded once the new version is saved.
func (s *Service) settle(ctx context.Context, clientID string, period dateutil.YearMonth, election domain.RefundElection, filedAt time.Time, prev *domain.VatSettlement) (*domain.VatSettlement, error) {
	profile, err := s.deps.Profiles.Profile(ctx, clientID)
	if err != nil {
		return nil, err
	}
	txs, err := s.deps.Transactions.Transactions(ctx, clientID, period)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	ref := id.String()
	version := 1
	if prev != nil {
		version = prev.Version + 1
	}

	var st *domain.VatSettlement
	err = s.deps.Credits.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if prev != nil {
			if err := s.deps.Credits.ReverseTx(ctx, tx, clientID, prev.ID.String(), ref); err != nil {
				return err
			}
		}
		if s.cfg.VatCreditMaxAgeMonths > 0 {
			if _, err := s.deps.Credits.ExpireTx(ctx, tx, clientID, period, s.cfg.VatCreditMaxAgeMonths); err != nil {
				return err
			}
		}
		credits, _, err := s.deps.Credits.AvailableTx(ctx, tx, clientID, period)
		if err != nil {
			return err
		}

		res, err := s.deps.Engine.SettleVat(domain.VatSettlementInput{
			ClientID:      clientID,
			Period:        period,
			Transactions:  txs,
			CarryForwards: credits,
			Election:      election,
			Profile:       profile,
			FiledAt:       filedAt,
		})
		if err != nil {
			return err
		}
		if err := s.deps.Credits.ApplyTx(ctx, tx, ref, period, res.Applications); err != nil {
			return err
		}
		if res.NewCarryForward.IsPositive() {
			if _, err := s.deps.Credits.RegisterTx(ctx, tx, clientID, period, res.NewCarryForward, ref); err != nil {
				return err
			}
		}

		st = &domain.VatSettlement{
			ID: id, ClientID: clientID, Period: period, Version: version, Result: *res, CreatedAt: s.now(),
		}
		if err := s.deps.Settlements.Save(ctx, st); err != nil {
			return fmt.Errorf("save settlement %s: %w", st.ID, err)
		}
		if prev != nil {
			superseded := *prev
			superseded.Superseded = true
			if err := s.deps.Settlements.Save(ctx, &superseded); err != nil {
				return fmt.Errorf("supersede settlement %s: %w", prev.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("vat period settled", slog.String("client", clientID), slog.String("period", period.String()),
		slog.Int("version", version), slog.String("due", st.Result.VatDue.String()), slog.String("refund", st.Result.VatRefund.String()))
	return st, nil
}

// CalculateContributions prices ZUS contributions for a known client.
func (s *Service) CalculateContributions(ctx context.Context, in domain.ContributionInput) (*domain.ContributionResult, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.deps.Profiles.Profile(ctx, in.ClientID); err != nil {
		return nil, err
	}
	return s.deps.Engine.CalculateContributions(in)
}
