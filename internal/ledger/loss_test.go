package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltax/settlement-engine/internal/catalog"
	"github.com/pltax/settlement-engine/internal/domain"
	money "github.com/pltax/settlement-engine/pkg/decimal"
)

var fixedNow = time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)

func m(s string) money.Money { return money.MustMoney(s) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLossLedger(t *testing.T) (*LossLedger, *MemoryStore) {
	t.Helper()
	cat, err := catalog.LoadSeed(context.Background())
	require.NoError(t, err)
	store := NewMemoryStore()
	l := NewLossLedger(store, cat, quietLogger())
	l.now = func() time.Time { return fixedNow }
	return l, store
}

func TestRegisterSetsExpiryFromCatalog(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()

	rec, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("10000"), "decl-2023")
	require.NoError(t, err)
	assert.Equal(t, 2028, rec.ExpiryYear)
	assert.Equal(t, domain.LossActive, rec.StatusAt(2024))
	assert.Equal(t, domain.LossExpired, rec.StatusAt(2029))

	_, err = l.Register(ctx, "acme", domain.TaxCIT, 2023, m("1"), "decl-2023")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = l.Register(ctx, "acme", domain.TaxCIT, 2024, m("0"), "decl-zero")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, err = l.Register(ctx, "acme", domain.TaxCIT, 2015, m("10"), "decl-old")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no catalog slice for 2015")
}

func TestConsumeIsFIFO(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	older, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("10000"), "decl-2023")
	require.NoError(t, err)
	younger, err := l.Register(ctx, "acme", domain.TaxCIT, 2024, m("5000"), "decl-2024")
	require.NoError(t, err)

	bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxCIT, 2025)
	require.NoError(t, err)
	assert.Equal(t, "15000.00", bal.String())

	used, err := l.Consume(ctx, "acme", domain.TaxCIT, 2025, m("12000"), "decl-2025")
	require.NoError(t, err)
	require.Len(t, used, 2)
	assert.Equal(t, older.ID, used[0].RecordID)
	assert.Equal(t, "10000.00", used[0].Amount.String())
	assert.Equal(t, younger.ID, used[1].RecordID)
	assert.Equal(t, "2000.00", used[1].Amount.String())

	records, err := l.Records(ctx, "acme", domain.TaxCIT)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.LossFullyConsumed, records[0].StatusAt(2025))
	assert.Equal(t, domain.LossPartiallyConsumed, records[1].StatusAt(2025))
	for _, rec := range records {
		require.NoError(t, rec.CheckInvariant())
	}
	assert.Equal(t, "3000.00", records[1].RemainingAmount.String())
}

func TestConsumeGuards(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	_, err := l.Register(ctx, "acme", domain.TaxPIT, 2023, m("1000"), "decl-2023")
	require.NoError(t, err)

	t.Run("same-year loss is not available", func(t *testing.T) {
		bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxPIT, 2023)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
	})

	t.Run("overdraw leaves records untouched", func(t *testing.T) {
		_, err := l.Consume(ctx, "acme", domain.TaxPIT, 2024, m("1000.01"), "decl-big")
		assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
		bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxPIT, 2024)
		require.NoError(t, err)
		assert.Equal(t, "1000.00", bal.String())
	})

	t.Run("a declaration consumes once", func(t *testing.T) {
		_, err := l.Consume(ctx, "acme", domain.TaxPIT, 2024, m("100"), "decl-2024")
		require.NoError(t, err)
		_, err = l.Consume(ctx, "acme", domain.TaxPIT, 2024, m("100"), "decl-2024")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("expired losses drop out", func(t *testing.T) {
		bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxPIT, 2029)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		_, err = l.Consume(ctx, "acme", domain.TaxPIT, 2029, m("1"), "decl-2029")
		assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
	})

	t.Run("tax types are separate", func(t *testing.T) {
		bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxCIT, 2024)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
	})
}

func TestApplyConsumption(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	rec, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("500"), "decl-2023")
	require.NoError(t, err)

	bal, err := l.ApplyConsumption(ctx, rec.ID, 2024, m("200"), "decl-2024")
	require.NoError(t, err)
	assert.Equal(t, "300.00", bal.String())
	_, err = l.ApplyConsumption(ctx, rec.ID, 2024, m("300.01"), "decl-2024b")
	assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
	_, err = l.ApplyConsumption(ctx, rec.ID, 2030, m("1"), "decl-2030")
	assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
	_, err = l.ApplyConsumption(ctx, uuid.New(), 2024, m("1"), "decl-x")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	records, err := l.Records(ctx, "acme", domain.TaxCIT)
	require.NoError(t, err)
	assert.Equal(t, "300.00", records[0].RemainingAmount.String())
	require.Len(t, records[0].UsageHistory, 1)
	assert.Equal(t, fixedNow, records[0].UsageHistory[0].At)
}

func TestApplyConsumptionOlderLossFirst(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	older, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("1000"), "decl-2023")
	require.NoError(t, err)
	younger, err := l.Register(ctx, "acme", domain.TaxCIT, 2024, m("1000"), "decl-2024")
	require.NoError(t, err)

	_, err = l.ApplyConsumption(ctx, younger.ID, 2025, m("500"), "decl-2025")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "LOSS_NOT_FIFO", de.Code)

	records, err := l.Records(ctx, "acme", domain.TaxCIT)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1000.00", records[0].RemainingAmount.String())
	assert.Equal(t, "1000.00", records[1].RemainingAmount.String(), "nothing was consumed")

	bal, err := l.ApplyConsumption(ctx, older.ID, 2025, m("1000"), "decl-2025")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", bal.String())

	bal, err = l.ApplyConsumption(ctx, younger.ID, 2025, m("500"), "decl-2025")
	require.NoError(t, err, "the older loss is exhausted")
	assert.Equal(t, "500.00", bal.String())
}

func TestLedgerUpdateRollsBackTogether(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	_, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("1000"), "decl-2023")
	require.NoError(t, err)

	err = l.Update(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := l.ConsumeTx(ctx, tx, "acme", domain.TaxCIT, 2024, m("400"), "decl-2024"); err != nil {
			return err
		}
		_, err := l.RegisterTx(ctx, tx, "acme", domain.TaxCIT, 2024, m("0"), "decl-2024")
		return err
	})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxCIT, 2024)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", bal.String(), "the consumption was rolled back")
}

func TestReverseRestoresConsumption(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	_, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("4000"), "decl-2023")
	require.NoError(t, err)
	_, err = l.Register(ctx, "acme", domain.TaxCIT, 2024, m("4000"), "decl-2024")
	require.NoError(t, err)
	_, err = l.Consume(ctx, "acme", domain.TaxCIT, 2025, m("5000"), "decl-2025")
	require.NoError(t, err)

	excluding, err := l.AvailableBalanceExcluding(ctx, "acme", domain.TaxCIT, 2025, "decl-2025")
	require.NoError(t, err)
	assert.Equal(t, "8000.00", excluding.String())

	require.NoError(t, l.Reverse(ctx, "acme", domain.TaxCIT, "decl-2025", "decl-2025-c1"))

	bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxCIT, 2025)
	require.NoError(t, err)
	assert.Equal(t, excluding.String(), bal.String())

	records, err := l.Records(ctx, "acme", domain.TaxCIT)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, rec.CheckInvariant())
		require.Len(t, rec.UsageHistory, 2, "history is append-only")
		assert.True(t, rec.UsageHistory[1].Amount.IsNegative())
		assert.Equal(t, "decl-2025-c1", rec.UsageHistory[1].ReversedBy)
		assert.True(t, rec.UsedBy("decl-2025").IsZero())
	}

	used, err := l.Consume(ctx, "acme", domain.TaxCIT, 2025, m("1000"), "decl-2025-c1")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", used[0].Amount.String())
}

func TestReverseSupersedesRegisteredLoss(t *testing.T) {
	l, _ := newLossLedger(t)
	ctx := context.Background()
	_, err := l.Register(ctx, "acme", domain.TaxCIT, 2023, m("700"), "decl-2023")
	require.NoError(t, err)

	require.NoError(t, l.Reverse(ctx, "acme", domain.TaxCIT, "decl-2023", "decl-2023-c1"))
	records, err := l.Records(ctx, "acme", domain.TaxCIT)
	require.NoError(t, err)
	assert.Equal(t, domain.LossSuperseded, records[0].StatusAt(2024))
	bal, err := l.GetAvailableBalance(ctx, "acme", domain.TaxCIT, 2024)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	_, err = l.Register(ctx, "acme", domain.TaxCIT, 2023, m("650"), "decl-2023-c1")
	require.NoError(t, err)
	_, err = l.Consume(ctx, "acme", domain.TaxCIT, 2024, m("100"), "decl-2024")
	require.NoError(t, err)

	err = l.Reverse(ctx, "acme", domain.TaxCIT, "decl-2023-c1", "decl-2023-c2")
	assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
}
