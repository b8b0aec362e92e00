package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// ParameterSource provides the absolute catalog parameters the ledger needs.
type ParameterSource interface {
	Parameter(taxType domain.TaxType, code string, asOf time.Time) (decimal.Decimal, error)
}

// Consumption is the part of one loss record used by a declaration.
type Consumption struct {
	RecordID uuid.UUID   `json:"record_id"`
	LossYear int         `json:"loss_year"`
	Amount   money.Money `json:"amount"`
}

// LossLedger tracks tax losses carried forward per client and tax type.
// Callers serialize mutations for one client and tax type with a Locker.
type LossLedger struct {
	store   Store
	catalog ParameterSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewLossLedger creates a loss ledger over the store.
func NewLossLedger(store Store, catalog ParameterSource, logger *slog.Logger) *LossLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LossLedger{store: store, catalog: catalog, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// GetAvailableBalance sums what the client can still offset in asOfYear.
func (l *LossLedger) GetAvailableBalance(ctx context.Context, clientID string, taxType domain.TaxType, asOfYear int) (money.Money, error) {
	total := money.Zero()
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		records, err := tx.LossRecords(ctx, clientID, taxType)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.EligibleIn(asOfYear) {
				total = total.Add(rec.RemainingAmount)
			}
		}
		return nil
	})
	return total, err
}

// AvailableBalanceExcluding is the balance as if the declaration's consumption had been reversed.
func (l *LossLedger) AvailableBalanceExcluding(ctx context.Context, clientID string, taxType domain.TaxType, asOfYear int, declarationID string) (money.Money, error) {
	total := money.Zero()
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		records, err := tx.LossRecords(ctx, clientID, taxType)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.SupersededBy != "" || asOfYear > rec.ExpiryYear || rec.LossYear >= asOfYear {
				continue
			}
			total = total.Add(rec.RemainingAmount).Add(rec.UsedBy(declarationID))
		}
		return nil
	})
	return total, err
}

// Update runs fn in a single ledger transaction. The *Tx methods called with
// the supplied Tx commit or roll back together.
func (l *LossLedger) Update(ctx context.Context, fn func(context.Context, Tx) error) error {
	return l.store.WithTx(ctx, fn)
}

// ApplyConsumption uses amount from a single record on behalf of referenceID
// and returns the client's balance left for year. Older eligible losses must
// be exhausted first.
func (l *LossLedger) ApplyConsumption(ctx context.Context, recordID uuid.UUID, year int, amount money.Money, referenceID string) (money.Money, error) {
	balance := money.Zero()
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LossRecord(ctx, recordID)
		if err != nil {
			return err
		}
		records, err := tx.LossRecords(ctx, rec.ClientID, rec.TaxType)
		if err != nil {
			return err
		}
		for _, other := range records {
			if other.ID != rec.ID && other.LossYear < rec.LossYear && other.EligibleIn(year) {
				return domain.InvariantViolation("LOSS_NOT_FIFO",
					"loss of %d still has %s remaining; consume it before the loss of %d", other.LossYear, other.RemainingAmount, rec.LossYear)
			}
		}
		if err := l.consumeRecord(rec, year, amount, referenceID); err != nil {
			return err
		}
		if err := tx.SaveLossRecord(ctx, rec); err != nil {
			return err
		}
		for _, other := range records {
			if other.ID == rec.ID {
				other = rec
			}
			if other.EligibleIn(year) {
				balance = balance.Add(other.RemainingAmount)
			}
		}
		return nil
	})
	if err != nil {
		return money.Zero(), err
	}
	return balance, nil
}

// Consume draws amount from the client's records oldest loss year first.
// A declaration consumes at most once: a second call for the same reference is a Conflict.
func (l *LossLedger) Consume(ctx context.Context, clientID string, taxType domain.TaxType, year int, amount money.Money, referenceID string) ([]Consumption, error) {
	var out []Consumption
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = l.ConsumeTx(ctx, tx, clientID, taxType, year, amount, referenceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeTx is Consume inside an open ledger transaction.
func (l *LossLedger) ConsumeTx(ctx context.Context, tx Tx, clientID string, taxType domain.TaxType, year int, amount money.Money, referenceID string) ([]Consumption, error) {
	if amount.IsNegative() {
		return nil, domain.InvalidInput("amount", "NEGATIVE_AMOUNT", "loss consumption must not be negative, got %s", amount)
	}
	records, err := tx.LossRecords(ctx, clientID, taxType)
	if err != nil {
		return nil, err
	}
	available := money.Zero()
	for _, rec := range records {
		if !rec.UsedBy(referenceID).IsZero() {
			return nil, domain.Conflict("LOSS_ALREADY_APPLIED", "declaration %s already consumed losses of %s %s", referenceID, clientID, taxType)
		}
		if rec.EligibleIn(year) {
			available = available.Add(rec.RemainingAmount)
		}
	}
	if amount.GreaterThan(available) {
		return nil, domain.InvariantViolation("LOSS_INSUFFICIENT", "cannot consume %s: only %s available for %s %s in %d",
			amount, available, clientID, taxType, year)
	}

	sortOldestFirst(records)
	var out []Consumption
	left := amount
	for _, rec := range records {
		if !left.IsPositive() {
			break
		}
		if !rec.EligibleIn(year) {
			continue
		}
		take := money.Min(left, rec.RemainingAmount)
		if err := l.consumeRecord(rec, year, take, referenceID); err != nil {
			return nil, err
		}
		if err := tx.SaveLossRecord(ctx, rec); err != nil {
			return nil, err
		}
		out = append(out, Consumption{RecordID: rec.ID, LossYear: rec.LossYear, Amount: take})
		left = left.Sub(take)
	}
	if len(out) > 0 {
		l.logger.Info("loss consumed", slog.String("client", clientID), slog.String("tax_type", string(taxType)),
			slog.Int("year", year), slog.String("amount", amount.String()), slog.String("declaration", referenceID))
	}
	return out, nil
}

func (l *LossLedger) consumeRecord(rec *domain.LossRecord, year int, amount money.Money, referenceID string) error {
	if !amount.IsPositive() {
		return domain.InvalidInput("amount", "NON_POSITIVE_AMOUNT", "consumption must be positive, got %s", amount)
	}
	switch {
	case rec.SupersededBy != "":
		return domain.InvariantViolation("LOSS_SUPERSEDED", "loss record %s was superseded by %s", rec.ID, rec.SupersededBy)
	case year > rec.ExpiryYear:
		return domain.InvariantViolation("LOSS_EXPIRED", "loss record %s expired after %d", rec.ID, rec.ExpiryYear)
	case rec.LossYear >= year:
		return domain.InvariantViolation("LOSS_NOT_YET_AVAILABLE", "loss of %d cannot offset income of %d", rec.LossYear, year)
	case amount.GreaterThan(rec.RemainingAmount):
		return domain.InvariantViolation("LOSS_OVERDRAWN", "cannot consume %s from loss record %s with %s remaining",
			amount, rec.ID, rec.RemainingAmount)
	}
	rec.UsedAmount = rec.UsedAmount.Add(amount)
	rec.RemainingAmount = rec.RemainingAmount.Sub(amount)
	rec.UsageHistory = append(rec.UsageHistory, domain.LossUsage{
		Year: year, Amount: amount, DeclarationID: referenceID, At: l.now(),
	})
	return rec.CheckInvariant()
}

// Register records a new loss. The expiry year comes from the catalog.
func (l *LossLedger) Register(ctx context.Context, clientID string, taxType domain.TaxType, lossYear int, amount money.Money, declarationID string) (*domain.LossRecord, error) {
	var rec *domain.LossRecord
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rec, err = l.RegisterTx(ctx, tx, clientID, taxType, lossYear, amount, declarationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RegisterTx is Register inside an open ledger transaction.
func (l *LossLedger) RegisterTx(ctx context.Context, tx Tx, clientID string, taxType domain.TaxType, lossYear int, amount money.Money, declarationID string) (*domain.LossRecord, error) {
	if !amount.IsPositive() {
		return nil, domain.InvalidInput("amount", "NON_POSITIVE_AMOUNT", "registered loss must be positive, got %s", amount)
	}
	years, err := l.catalog.Parameter(taxType, domain.ParamLossExpiryYears, dateutil.YearEnd(lossYear))
	if err != nil {
		return nil, fmt.Errorf("loss expiry for %s %d: %w", taxType, lossYear, err)
	}
	records, err := tx.LossRecords(ctx, clientID, taxType)
	if err != nil {
		return nil, err
	}
	for _, existing := range records {
		if existing.SourceDeclarationID == declarationID && existing.SupersededBy == "" {
			return nil, domain.Conflict("LOSS_ALREADY_REGISTERED", "declaration %s already registered loss record %s", declarationID, existing.ID)
		}
	}

	rec := &domain.LossRecord{
		ID:                  uuid.New(),
		ClientID:            clientID,
		TaxType:             taxType,
		LossYear:            lossYear,
		OriginalAmount:      amount.Round(),
		UsedAmount:          money.Zero(),
		RemainingAmount:     amount.Round(),
		ExpiryYear:          lossYear + int(years.IntPart()),
		SourceDeclarationID: declarationID,
		CreatedAt:           l.now(),
	}
	if err := tx.SaveLossRecord(ctx, rec); err != nil {
		return nil, err
	}
	l.logger.Info("loss registered", slog.String("client", clientID), slog.String("tax_type", string(taxType)),
		slog.Int("loss_year", lossYear), slog.String("amount", rec.OriginalAmount.String()), slog.Int("expiry_year", rec.ExpiryYear))
	return rec, nil
}

// Reverse undoes the ledger effects of a corrected declaration. Consumption is
// reversed with negative usage entries; losses the declaration registered are
// superseded, which fails when a later period already used them.
func (l *LossLedger) Reverse(ctx context.Context, clientID string, taxType domain.TaxType, originalDeclarationID, correctionID string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return l.ReverseTx(ctx, tx, clientID, taxType, originalDeclarationID, correctionID)
	})
}

// ReverseTx is Reverse inside an open ledger transaction.
func (l *LossLedger) ReverseTx(ctx context.Context, tx Tx, clientID string, taxType domain.TaxType, originalDeclarationID, correctionID string) error {
	records, err := tx.LossRecords(ctx, clientID, taxType)
	if err != nil {
		return err
	}
	sortOldestFirst(records)
	for _, rec := range records {
		if rec.SourceDeclarationID == originalDeclarationID && rec.SupersededBy == "" {
			if rec.UsedAmount.IsPositive() {
				return domain.InvariantViolation("LOSS_ALREADY_CONSUMED",
					"loss record %s from declaration %s is already consumed (%s used)", rec.ID, originalDeclarationID, rec.UsedAmount)
			}
			rec.SupersededBy = correctionID
			if err := tx.SaveLossRecord(ctx, rec); err != nil {
				return err
			}
			continue
		}
		used := rec.UsedBy(originalDeclarationID)
		if !used.IsPositive() {
			continue
		}
		rec.UsedAmount = rec.UsedAmount.Sub(used)
		rec.RemainingAmount = rec.RemainingAmount.Add(used)
		rec.UsageHistory = append(rec.UsageHistory, domain.LossUsage{
			Year:          lastUsageYear(rec, originalDeclarationID),
			Amount:        used.Neg(),
			DeclarationID: originalDeclarationID,
			ReversedBy:    correctionID,
			At:            l.now(),
		})
		if err := rec.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveLossRecord(ctx, rec); err != nil {
			return err
		}
		l.logger.Info("loss consumption reversed", slog.String("record", rec.ID.String()),
			slog.String("amount", used.String()), slog.String("correction", correctionID))
	}
	return nil
}

// Records lists the client's records oldest first, for reporting.
func (l *LossLedger) Records(ctx context.Context, clientID string, taxType domain.TaxType) ([]domain.LossRecord, error) {
	var out []domain.LossRecord
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		records, err := tx.LossRecords(ctx, clientID, taxType)
		if err != nil {
			return err
		}
		sortOldestFirst(records)
		for _, rec := range records {
			out = append(out, *rec)
		}
		return nil
	})
	return out, err
}

func sortOldestFirst(records []*domain.LossRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].LossYear != records[j].LossYear {
			return records[i].LossYear < records[j].LossYear
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func lastUsageYear(rec *domain.LossRecord, declarationID string) int {
	year := 0
	for _, u := range rec.UsageHistory {
		if u.DeclarationID == declarationID {
			year = u.Year
		}
	}
	return year
}
