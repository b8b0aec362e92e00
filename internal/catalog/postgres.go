package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
)

const (
	selectRates = `SELECT tax_type, code, value::text, valid_from, valid_to, is_active
FROM tax_rates ORDER BY tax_type, code, valid_from`
	selectThresholds = `SELECT tax_type, lower_bound::text, upper_bound::text, rate::text, base_amount::text, valid_from, valid_to
FROM tax_thresholds ORDER BY tax_type, valid_from, lower_bound`
	selectParameters = `SELECT tax_type, code, amount::text, valid_from, valid_to
FROM tax_parameters ORDER BY tax_type, code, valid_from`
	selectVersion = `SELECT version FROM tax_catalog_version ORDER BY loaded_at DESC LIMIT 1`
)

// PostgresSource reads catalog tables maintained by the persistence collaborator.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource constructs a source over the pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Load implements Source inside one repeatable-read snapshot.
func (s *PostgresSource) Load(ctx context.Context) (*Dataset, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog: postgres source not initialised")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ds := &Dataset{}
	if err := tx.QueryRow(ctx, selectVersion).Scan(&ds.Version); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("catalog: version: %w", err)
	}
	if ds.Rates, err = loadRates(ctx, tx); err != nil {
		return nil, err
	}
	if ds.Thresholds, err = loadThresholds(ctx, tx); err != nil {
		return nil, err
	}
	if ds.Parameters, err = loadParameters(ctx, tx); err != nil {
		return nil, err
	}
	return ds, nil
}

func loadRates(ctx context.Context, tx pgx.Tx) ([]domain.RateEntry, error) {
	rows, err := tx.Query(ctx, selectRates)
	if err != nil {
		return nil, fmt.Errorf("catalog: query rates: %w", err)
	}
	defer rows.Close()
	var out []domain.RateEntry
	for rows.Next() {
		var (
			e       domain.RateEntry
			taxType string
			value   string
		)
		if err := rows.Scan(&taxType, &e.Code, &value, &e.ValidFrom, &e.ValidTo, &e.IsActive); err != nil {
			return nil, fmt.Errorf("catalog: scan rate: %w", err)
		}
		e.TaxType = domain.TaxType(taxType)
		if e.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("catalog: rate %s/%s: %w", taxType, e.Code, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func loadThresholds(ctx context.Context, tx pgx.Tx) ([]domain.Threshold, error) {
	rows, err := tx.Query(ctx, selectThresholds)
	if err != nil {
		return nil, fmt.Errorf("catalog: query thresholds: %w", err)
	}
	defer rows.Close()
	var out []domain.Threshold
	for rows.Next() {
		var (
			t              domain.Threshold
			taxType, lower string
			rate           string
			upper, base    *string
			validFrom      time.Time
			validTo        *time.Time
		)
		if err := rows.Scan(&taxType, &lower, &upper, &rate, &base, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("catalog: scan threshold: %w", err)
		}
		t.TaxType = domain.TaxType(taxType)
		t.ValidFrom, t.ValidTo = validFrom, validTo
		if t.LowerBound, err = decimal.NewFromString(lower); err != nil {
			return nil, fmt.Errorf("catalog: threshold lower bound: %w", err)
		}
		if t.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("catalog: threshold rate: %w", err)
		}
		if t.UpperBound, err = optionalDecimal(upper); err != nil {
			return nil, fmt.Errorf("catalog: threshold upper bound: %w", err)
		}
		if t.BaseAmount, err = optionalDecimal(base); err != nil {
			return nil, fmt.Errorf("catalog: threshold base amount: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadParameters(ctx context.Context, tx pgx.Tx) ([]domain.ParameterEntry, error) {
	rows, err := tx.Query(ctx, selectParameters)
	if err != nil {
		return nil, fmt.Errorf("catalog: query parameters: %w", err)
	}
	defer rows.Close()
	var out []domain.ParameterEntry
	for rows.Next() {
		var (
			p       domain.ParameterEntry
			taxType string
			amount  string
		)
		if err := rows.Scan(&taxType, &p.Code, &amount, &p.ValidFrom, &p.ValidTo); err != nil {
			return nil, fmt.Errorf("catalog: scan parameter: %w", err)
		}
		p.TaxType = domain.TaxType(taxType)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("catalog: parameter %s/%s: %w", taxType, p.Code, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
