package calculation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

var march2024 = dateutil.YearMonth{Year: 2024, Month: 3}

func domestic(dir domain.VatDirection, net, vat string) domain.VatTransaction {
	return domain.VatTransaction{
		ID: uuid.New(), ClientID: "c1", Direction: dir, Class: domain.ClassDomestic,
		RateCode: "23", NetAmount: m(net), VatAmount: m(vat), Period: march2024, Status: domain.VatTxActive,
	}
}

func credit(month int, remaining string) domain.VatCarryForward {
	return domain.VatCarryForward{
		ID: uuid.New(), ClientID: "c1", SourceYear: 2024, SourceMonth: month,
		OriginalAmount: m(remaining), RemainingAmount: m(remaining), Status: domain.CarryForwardActive,
	}
}

func TestVatRoundTripEveryRate(t *testing.T) {
	cat := seedCatalog(t)
	calc := NewVatCalculator(cat, nil)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	nets := []string{"0.01", "0.05", "1.00", "9.99", "99.99", "123.45", "1000.07", "1000000.00"}
	for _, rate := range cat.Rates(domain.TaxVAT, day) {
		for _, net := range nets {
			fwd, err := calc.CalculateTransaction(domain.VatLineInput{RateCode: rate.Code, Amount: m(net), Kind: domain.AmountNet, Date: day})
			require.NoError(t, err)
			assert.True(t, fwd.Amounts.Gross.Equal(fwd.Amounts.Net.Add(fwd.Amounts.Vat)))

			back, err := calc.CalculateTransaction(domain.VatLineInput{RateCode: rate.Code, Amount: fwd.Amounts.Gross, Kind: domain.AmountGross, Date: day})
			require.NoError(t, err)
			assertMoney(t, net, back.Amounts.Net, "rate %s net %s", rate.Code, net)
			assertMoney(t, fwd.Amounts.Vat.String(), back.Amounts.Vat, "rate %s net %s", rate.Code, net)
		}
	}
}

func TestCalculateTransaction(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	t.Run("gross inversion", func(t *testing.T) {
		res, err := calc.CalculateTransaction(domain.VatLineInput{RateCode: "23", Amount: m("123"), Kind: domain.AmountGross, Date: day})
		require.NoError(t, err)
		assertMoney(t, "100", res.Amounts.Net)
		assertMoney(t, "23", res.Amounts.Vat)
		assert.Equal(t, "PLN", res.Currency)
		assert.Nil(t, res.PLN)
	})

	t.Run("reduced rate gross", func(t *testing.T) {
		res, err := calc.CalculateTransaction(domain.VatLineInput{RateCode: "8", Amount: m("100"), Kind: domain.AmountGross, Date: day})
		require.NoError(t, err)
		assertMoney(t, "92.59", res.Amounts.Net)
		assertMoney(t, "7.41", res.Amounts.Vat)
	})

	t.Run("foreign currency", func(t *testing.T) {
		res, err := calc.CalculateTransaction(domain.VatLineInput{
			RateCode: "23", Amount: m("100"), Kind: domain.AmountNet, Date: day,
			Currency: "EUR", ExchangeRate: decimal.RequireFromString("4.3215"),
		})
		require.NoError(t, err)
		assertMoney(t, "23", res.Amounts.Vat)
		require.NotNil(t, res.PLN)
		assertMoney(t, "432.15", res.PLN.Net)
		assertMoney(t, "99.39", res.PLN.Vat) // 99.3945
		assertMoney(t, "531.54", res.PLN.Gross)
	})

	errCases := []struct {
		name string
		in   domain.VatLineInput
		kind domain.ErrorKind
	}{
		{"missing exchange rate", domain.VatLineInput{RateCode: "23", Amount: m("1"), Kind: domain.AmountNet, Date: day, Currency: "EUR"}, domain.KindInvalidInput},
		{"unknown rate code", domain.VatLineInput{RateCode: "17", Amount: m("1"), Kind: domain.AmountNet, Date: day}, domain.KindNotFound},
		{"unknown amount kind", domain.VatLineInput{RateCode: "23", Amount: m("1"), Kind: "TOTAL", Date: day}, domain.KindInvalidInput},
		{"missing date", domain.VatLineInput{RateCode: "23", Amount: m("1"), Kind: domain.AmountNet}, domain.KindInvalidInput},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.CalculateTransaction(tt.in)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestSettleScenarioWithCarryForward(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	cf := credit(1, "4000.00")

	res, err := calc.Settle(domain.VatSettlementInput{
		ClientID: "c1",
		Period:   march2024,
		Transactions: []domain.VatTransaction{
			domestic(domain.VatOutput, "100000.00", "23000.00"),
			domestic(domain.VatInput, "21739.13", "5000.00"),
		},
		CarryForwards: []domain.VatCarryForward{cf},
	})
	require.NoError(t, err)

	assertMoney(t, "23000", res.Output.TotalVat)
	assertMoney(t, "5000", res.Input.TotalVat)
	assertMoney(t, "18000", res.Difference)
	assertMoney(t, "14000", res.AdjustedDifference)
	assertMoney(t, "14000.00", res.VatDue)
	assertMoney(t, "0.00", res.VatRefund)
	require.Len(t, res.Applications, 1)
	assert.Equal(t, cf.ID, res.Applications[0].CarryForwardID)
	assertMoney(t, "4000", res.Applications[0].Amount)
	assertMoney(t, "23000", res.Output.ByRate["23"].Vat)
	assertMoney(t, "123000", res.Output.ByRate["23"].Gross)
	assert.Empty(t, res.RefundOptions)
	assert.Equal(t, 2, res.TransactionsSettled)
}

func TestIntraEUAcquisitionIsNeutral(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	acq := domain.VatTransaction{
		ID: uuid.New(), ClientID: "c1", Direction: domain.VatBoth, Class: domain.ClassIntraEUAcquisition,
		NetAmount: m("10000.55"), Period: march2024, Status: domain.VatTxActive,
	}

	pair, err := calc.ExpandTransaction(acq)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, domain.VatOutput, pair[0].Direction)
	assert.Equal(t, domain.VatInput, pair[1].Direction)
	assert.True(t, pair[0].VatAmount.Equal(pair[1].VatAmount))
	assertMoney(t, "2300.13", pair[0].VatAmount) // 2300.1265
	assert.Equal(t, "23", pair[0].RateCode)
	require.NotNil(t, pair[0].PairID)
	assert.Equal(t, *pair[0].PairID, *pair[1].PairID)

	res, err := calc.Settle(domain.VatSettlementInput{ClientID: "c1", Period: march2024, Transactions: []domain.VatTransaction{acq}})
	require.NoError(t, err)
	assert.True(t, res.Difference.IsZero())
	assert.True(t, res.VatDue.IsZero())
	assert.True(t, res.VatRefund.IsZero())
	assertMoney(t, "2300.13", res.Output.IntraEUAcquisition.Vat)
	assertMoney(t, "2300.13", res.Input.IntraEUAcquisition.Vat)

	_, err = calc.ExpandTransaction(domain.VatTransaction{Direction: domain.VatBoth, Class: domain.ClassDomestic, Period: march2024})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettleRejectsAsymmetricPair(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	pairID := uuid.New()
	out := domain.VatTransaction{ID: uuid.New(), ClientID: "c1", Direction: domain.VatOutput, Class: domain.ClassImportServices,
		RateCode: "23", NetAmount: m("1000"), VatAmount: m("230"), Period: march2024, Status: domain.VatTxActive, PairID: &pairID}
	in := out
	in.ID = uuid.New()
	in.Direction = domain.VatInput
	in.VatAmount = m("229.99")

	_, err := calc.Settle(domain.VatSettlementInput{ClientID: "c1", Period: march2024, Transactions: []domain.VatTransaction{out, in}})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestSettleRefundElections(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	filed := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	clean := domain.ClientProfile{ClientID: "c1", ActiveVATPayer: true, VATPayerVerified: true}

	t.Run("own excess carried forward", func(t *testing.T) {
		res, err := calc.Settle(domain.VatSettlementInput{
			ClientID: "c1", Period: march2024, FiledAt: filed, Profile: clean,
			Transactions: []domain.VatTransaction{
				domestic(domain.VatOutput, "4347.83", "1000.00"),
				domestic(domain.VatInput, "21739.13", "5000.00"),
			},
			CarryForwards: []domain.VatCarryForward{credit(1, "2000.00")},
		})
		require.NoError(t, err)
		assertMoney(t, "-4000", res.Difference)
		assertMoney(t, "6000", res.VatRefund)
		assert.Equal(t, domain.ElectCarryForward, res.Election)
		assertMoney(t, "4000", res.NewCarryForward, "only this period's excess becomes a new credit")
		assert.Empty(t, res.Applications, "older credit stays on its record")
		assert.True(t, res.RefundRequested.IsZero())
	})

	txs := []domain.VatTransaction{
		domestic(domain.VatOutput, "13043.48", "3000.00"),
		domestic(domain.VatInput, "4347.83", "1000.00"),
	}
	jan, feb := credit(1, "1500.00"), credit(2, "1000.00")

	t.Run("credits consumed oldest first up to the difference", func(t *testing.T) {
		res, err := calc.Settle(domain.VatSettlementInput{
			ClientID: "c1", Period: march2024, FiledAt: filed, Profile: clean,
			Transactions: txs, CarryForwards: []domain.VatCarryForward{feb, jan},
			Election: domain.ElectCarryForward,
		})
		require.NoError(t, err)
		assertMoney(t, "500", res.VatRefund)
		require.Len(t, res.Applications, 2)
		assert.Equal(t, jan.ID, res.Applications[0].CarryForwardID)
		assertMoney(t, "1500", res.Applications[0].Amount)
		assert.Equal(t, feb.ID, res.Applications[1].CarryForwardID)
		assertMoney(t, "500", res.Applications[1].Amount)
		assert.True(t, res.NewCarryForward.IsZero())
	})

	t.Run("cash refund pays out remaining credits", func(t *testing.T) {
		res, err := calc.Settle(domain.VatSettlementInput{
			ClientID: "c1", Period: march2024, FiledAt: filed, Profile: clean,
			Transactions: txs, CarryForwards: []domain.VatCarryForward{jan, feb},
			Election: domain.ElectRefund,
		})
		require.NoError(t, err)
		assertMoney(t, "500", res.RefundRequested)
		require.Len(t, res.Applications, 2)
		assertMoney(t, "1000", res.Applications[1].Amount)
		require.Len(t, res.RefundOptions, 3)
		assert.True(t, res.RefundOptions[0].Eligible)
		assert.Equal(t, filed.AddDate(0, 0, 60), res.RefundOptions[0].DueDate)
		assert.True(t, res.RefundOptions[1].Eligible)
		assert.False(t, res.RefundOptions[2].Eligible, "period had taxable sales")
	})
}

func TestSettleIgnoresIneligibleCredits(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	same := credit(3, "100.00")
	later := credit(4, "100.00")
	used := credit(1, "100.00")
	used.Status = domain.CarryForwardFullyApplied
	expired := credit(1, "100.00")
	expired.Status = domain.CarryForwardExpired
	other := credit(1, "100.00")
	other.ClientID = "c2"

	res, err := calc.Settle(domain.VatSettlementInput{
		ClientID: "c1", Period: march2024,
		Transactions:  []domain.VatTransaction{domestic(domain.VatOutput, "1000", "230")},
		CarryForwards: []domain.VatCarryForward{same, later, used, expired, other},
	})
	require.NoError(t, err)
	assert.True(t, res.CarryForwardTotal.IsZero())
	assertMoney(t, "230", res.VatDue)
}

func TestSettleCorrections(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	sale := domestic(domain.VatOutput, "1000.00", "230.00")
	cancelled := domestic(domain.VatOutput, "5000.00", "1150.00")
	cancelled.Status = domain.VatTxCancelled

	corrected, corr, err := calc.CorrectTransaction(sale, m("-200.00"), m("-46.00"), march2024)
	require.NoError(t, err)
	assert.Equal(t, domain.VatTxCorrected, corrected.Status)
	assert.Equal(t, domain.VatTxActive, sale.Status, "caller's copy is untouched")
	assert.True(t, corr.IsCorrection)
	require.NotNil(t, corr.CorrectsTransactionID)
	assert.Equal(t, sale.ID, *corr.CorrectsTransactionID)

	res, err := calc.Settle(domain.VatSettlementInput{
		ClientID: "c1", Period: march2024,
		Transactions: []domain.VatTransaction{corrected, corr, cancelled},
	})
	require.NoError(t, err)
	assertMoney(t, "184", res.VatDue)
	assertMoney(t, "800", res.Output.ByRate["23"].Net)
	assert.Equal(t, 2, res.TransactionsSettled)

	_, _, err = calc.CorrectTransaction(cancelled, m("1"), m("0.23"), march2024)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestCorrectPairStaysNeutral(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	pair, err := calc.ExpandTransaction(domain.VatTransaction{
		ID: uuid.New(), ClientID: "c1", Direction: domain.VatBoth, Class: domain.ClassImportServices,
		NetAmount: m("1000"), Period: march2024, Status: domain.VatTxActive,
	})
	require.NoError(t, err)

	_, _, err = calc.CorrectTransaction(pair[0], m("-100"), m("-23"), march2024)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	all, err := calc.CorrectPair(pair[0], pair[1], m("-100"), march2024)
	require.NoError(t, err)
	require.Len(t, all, 4)

	res, err := calc.Settle(domain.VatSettlementInput{ClientID: "c1", Period: march2024, Transactions: all})
	require.NoError(t, err)
	assert.True(t, res.Difference.IsZero())
	assertMoney(t, "207", res.Output.ImportServices.Vat)
}

func TestRefundOptionEligibility(t *testing.T) {
	calc := NewVatCalculator(seedCatalog(t), nil)
	restore := nowFunc
	defer SetNowFunc(restore)
	SetNowFunc(func() time.Time { return time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC) })

	in := domain.VatSettlementInput{
		ClientID: "c1", Period: march2024,
		Profile: domain.ClientProfile{ClientID: "c1", ActiveVATPayer: true, LateFilingsLast12M: 2, OutstandingDues: true},
		Transactions: []domain.VatTransaction{domestic(domain.VatInput, "1000", "230")},
	}
	res, err := calc.Settle(in)
	require.NoError(t, err)
	require.Len(t, res.RefundOptions, 3)

	byTimeline := map[domain.RefundTimeline]domain.RefundOption{}
	for _, o := range res.RefundOptions {
		byTimeline[o.Timeline] = o
	}
	assert.True(t, byTimeline[domain.RefundStandard].Eligible)
	acc := byTimeline[domain.RefundAccelerated]
	assert.False(t, acc.Eligible)
	assert.Len(t, acc.Reasons, 3)
	assert.True(t, byTimeline[domain.RefundExtended].Eligible, "no taxable sales in the period")
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), acc.DueDate)

	in.Profile.ActiveVATPayer = false
	res, err = calc.Settle(in)
	require.NoError(t, err)
	for _, o := range res.RefundOptions {
		assert.False(t, o.Eligible, o.Timeline)
	}
}
