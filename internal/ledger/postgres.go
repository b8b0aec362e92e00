package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
)

const (
	lossColumns = `id, client_id, tax_type, loss_year, original_amount::text, used_amount::text, remaining_amount::text,
expiry_year, source_declaration_id, superseded_by, usage_history, created_at`
	creditColumns = `id, client_id, source_year, source_month, original_amount::text, remaining_amount::text,
status, source_settlement_id, applications, created_at`

	upsertLoss = `INSERT INTO loss_records (id, client_id, tax_type, loss_year, original_amount, used_amount, remaining_amount,
expiry_year, source_declaration_id, superseded_by, usage_history, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11::jsonb, $12)
ON CONFLICT (id) DO UPDATE SET used_amount = EXCLUDED.used_amount, remaining_amount = EXCLUDED.remaining_amount,
superseded_by = EXCLUDED.superseded_by, usage_history = EXCLUDED.usage_history`
	upsertCredit = `INSERT INTO vat_carry_forwards (id, client_id, source_year, source_month, original_amount, remaining_amount,
status, source_settlement_id, applications, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9::jsonb, $10)
ON CONFLICT (id) DO UPDATE SET remaining_amount = EXCLUDED.remaining_amount, status = EXCLUDED.status,
applications = EXCLUDED.applications`
)

// PostgresStore keeps ledger records in PostgreSQL. Every read inside a
// transaction takes row locks so concurrent writers queue on the same client.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store over the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("ledger: postgres store not initialised")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LossRecords(ctx context.Context, clientID string, taxType domain.TaxType) ([]*domain.LossRecord, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lossColumns+` FROM loss_records
WHERE client_id = $1 AND tax_type = $2 ORDER BY loss_year, created_at FOR UPDATE`, clientID, string(taxType))
	if err != nil {
		return nil, fmt.Errorf("ledger: query loss records: %w", err)
	}
	defer rows.Close()
	var out []*domain.LossRecord
	for rows.Next() {
		rec, err := scanLoss(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *pgTx) LossRecord(ctx context.Context, id uuid.UUID) (*domain.LossRecord, error) {
	rec, err := scanLoss(t.tx.QueryRow(ctx, `SELECT `+lossColumns+` FROM loss_records WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("LOSS_RECORD_NOT_FOUND", "loss record %s not found", id)
	}
	return rec, err
}

func (t *pgTx) SaveLossRecord(ctx context.Context, rec *domain.LossRecord) error {
	history, err := encodeJSONB(rec.UsageHistory)
	if err != nil {
		return fmt.Errorf("ledger: encode usage history: %w", err)
	}
	_, err = t.tx.Exec(ctx, upsertLoss, rec.ID, rec.ClientID, string(rec.TaxType), rec.LossYear,
		rec.OriginalAmount.String(), rec.UsedAmount.String(), rec.RemainingAmount.String(),
		rec.ExpiryYear, rec.SourceDeclarationID, rec.SupersededBy, history, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: save loss record %s: %w", rec.ID, err)
	}
	return nil
}

func (t *pgTx) CarryForwards(ctx context.Context, clientID string) ([]*domain.VatCarryForward, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+creditColumns+` FROM vat_carry_forwards
WHERE client_id = $1 ORDER BY source_year, source_month, created_at FOR UPDATE`, clientID)
	if err != nil {
		return nil, fmt.Errorf("ledger: query carry-forwards: %w", err)
	}
	defer rows.Close()
	var out []*domain.VatCarryForward
	for rows.Next() {
		cf, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (t *pgTx) CarryForward(ctx context.Context, id uuid.UUID) (*domain.VatCarryForward, error) {
	cf, err := scanCredit(t.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM vat_carry_forwards WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("CARRY_FORWARD_NOT_FOUND", "carry-forward %s not found", id)
	}
	return cf, err
}

func (t *pgTx) SaveCarryForward(ctx context.Context, cf *domain.VatCarryForward) error {
	apps, err := encodeJSONB(cf.Applications)
	if err != nil {
		return fmt.Errorf("ledger: encode applications: %w", err)
	}
	_, err = t.tx.Exec(ctx, upsertCredit, cf.ID, cf.ClientID, cf.SourceYear, cf.SourceMonth,
		cf.OriginalAmount.String(), cf.RemainingAmount.String(), string(cf.Status), cf.SourceSettlementID,
		apps, cf.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: save carry-forward %s: %w", cf.ID, err)
	}
	return nil
}

// encodeJSONB renders a history slice for a jsonb column; nil becomes an empty array.
func encodeJSONB[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanLoss(row pgx.Row) (*domain.LossRecord, error) {
	var (
		rec                       domain.LossRecord
		taxType                   string
		original, used, remaining string
		history                   []byte
	)
	if err := row.Scan(&rec.ID, &rec.ClientID, &taxType, &rec.LossYear, &original, &used, &remaining,
		&rec.ExpiryYear, &rec.SourceDeclarationID, &rec.SupersededBy, &history, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: scan loss record: %w", err)
	}
	rec.TaxType = domain.TaxType(taxType)
	var err error
	if rec.OriginalAmount, err = money.NewMoneyFromString(original); err != nil {
		return nil, err
	}
	if rec.UsedAmount, err = money.NewMoneyFromString(used); err != nil {
		return nil, err
	}
	if rec.RemainingAmount, err = money.NewMoneyFromString(remaining); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.UsageHistory); err != nil {
			return nil, fmt.Errorf("ledger: decode usage history of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func scanCredit(row pgx.Row) (*domain.VatCarryForward, error) {
	var (
		cf                  domain.VatCarryForward
		status              string
		original, remaining string
		apps                []byte
	)
	if err := row.Scan(&cf.ID, &cf.ClientID, &cf.SourceYear, &cf.SourceMonth, &original, &remaining,
		&status, &cf.SourceSettlementID, &apps, &cf.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: scan carry-forward: %w", err)
	}
	cf.Status = domain.CarryForwardStatus(status)
	var err error
	if cf.OriginalAmount, err = money.NewMoneyFromString(original); err != nil {
		return nil, err
	}
	if cf.RemainingAmount, err = money.NewMoneyFromString(remaining); err != nil {
		return nil, err
	}
	if len(apps) > 0 {
		if err := json.Unmarshal(apps, &cf.Applications); err != nil {
			return nil, fmt.Errorf("ledger: decode applications of %s: %w", cf.ID, err)
		}
	}
	return &cf, nil
}
