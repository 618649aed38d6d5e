package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

var testNow = time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(asset, total string) balance.Entry {
	return balance.NewEntry(asset, dec(total), decimal.Zero, dec(total))
}

func result(venue, source string, entries ...balance.Entry) balance.FetchResult {
	b := balance.Balances{}
	for _, e := range entries {
		b.Add(e)
	}
	return balance.FetchResult{Key: balance.NewSourceKey(venue, source), Balances: b}
}

func freshQuote(asset, price string) pricing.Quote {
	return pricing.Quote{asset: {Value: dec(price), Origin: pricing.OriginFresh, At: testNow}}
}

func testCEXLayout(t *testing.T) *CEXLayout {
	t.Helper()
	layout, err := NewCEXLayout(config.CEXLedger{
		PrimaryAsset: "ALI",
		QuoteAssets:  []string{"usdt"},
		Groups: []config.LedgerGroup{
			{
				Venue:  "Binance",
				Assets: []string{"ALI", "USDT"},
				Slots: []config.LedgerSlot{
					{Kind: "live", Account: "acc1", Column: "binance.main"},
					{Kind: "carry", Column: "binance.cold"},
					{Kind: "total", Column: "binance.total"},
				},
			},
			{
				Venue:  "bybit",
				Assets: []string{"ALI", "USDT"},
				Slots: []config.LedgerSlot{
					{Kind: "live", Account: "acc3", Column: "bybit.mm"},
				},
			},
		},
	})
	require.NoError(t, err)
	return layout
}

func TestCEXBuilder_Build(t *testing.T) {
	layout := testCEXLayout(t)
	b := NewCEXBuilder(layout, logger.Nop())

	snap := balance.Aggregate([]balance.FetchResult{
		result("binance", "acc1", entry("USDT", "100"), entry("ALI", "1000")),
		result("bybit", "acc3", entry("ALI", "500"), entry("USDT", "50")),
	}, testNow)
	prev := RowFromValues(Values{"binance.cold.ALI": "2,000", "binance.cold.USDT": "10"})

	row, report := b.Build(snap, freshQuote("ALI", "0.02"), prev, testNow)
	v := row.Values()

	assert.Equal(t, "2026-03-14", v[ColDate])
	assert.Equal(t, "1000", v["binance.main.ALI"])
	assert.Equal(t, "2000", v["binance.cold.ALI"])
	assert.Equal(t, "3000", v["binance.total.ALI"])
	assert.Equal(t, "110", v["binance.total.USDT"])
	assert.Equal(t, "500", v["bybit.mm.ALI"])
	assert.Equal(t, "3500", v["cumulative.ALI"])
	assert.Equal(t, "160", v["cumulative.USDT"])
	assert.Equal(t, "160", v[ColCumulativeQuote])
	assert.Equal(t, "0.02", v["price.ALI"])
	assert.Equal(t, "70.00", v[ColAssetUSDValuation])
	assert.Equal(t, "230.00", v[ColCumulativeUSDValuation])
	assert.Equal(t, "39.13", v[ColImbalancePct])
	assert.Equal(t, CommentSkewedQuote, v[ColComment])

	assert.True(t, report.Clean())
	assert.Equal(t, PriceFresh, report.PriceSource)
	assert.Equal(t, layout.Columns(), row.Columns())
}

func TestCEXBuilder_CarryForwardRoundTrip(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	snap := balance.Aggregate([]balance.FetchResult{
		result("binance", "acc1", entry("USDT", "1")),
		result("bybit", "acc3"),
	}, testNow)

	first, _ := b.Build(snap, freshQuote("ALI", "0.02"), RowFromValues(Values{
		"binance.cold.ALI":  "123.456",
		"binance.cold.USDT": "$7.5",
	}), testNow)

	second, report := b.Build(snap, freshQuote("ALI", "0.02"), RowFromValues(first.Values()), testNow.Add(24*time.Hour))

	for _, col := range []string{"binance.cold.ALI", "binance.cold.USDT"} {
		want, _ := first.Get(col)
		got, _ := second.Get(col)
		assert.Equal(t, want, got, col)
	}
	assert.False(t, report.HistoryGap)
	assert.Equal(t, "2026-03-15", second.Values()[ColDate])
}

func TestCEXBuilder_HistoryGap(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	snap := balance.Aggregate([]balance.FetchResult{
		result("binance", "acc1"),
		result("bybit", "acc3"),
	}, testNow)

	row, report := b.Build(snap, freshQuote("ALI", "0.02"), nil, testNow)

	assert.True(t, report.HistoryGap)
	assert.Equal(t, "0", row.Values()["binance.cold.ALI"])
	assert.Equal(t, "", row.Values()[ColComment])
	assert.Equal(t, "0.00", row.Values()[ColImbalancePct])
}

func TestCEXBuilder_UnparsableCarryIsZero(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	prev := RowFromValues(Values{"binance.cold.ALI": "n/a", "binance.cold.USDT": "5"})

	row, report := b.Build(nil, freshQuote("ALI", "0.02"), prev, testNow)

	assert.True(t, report.HistoryGap)
	assert.Equal(t, "0", row.Values()["binance.cold.ALI"])
	assert.Equal(t, "5", row.Values()["binance.cold.USDT"])
}

func TestCEXBuilder_FailedLiveAccountIsZero(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	snap := balance.Aggregate([]balance.FetchResult{
		{Key: balance.NewSourceKey("binance", "acc1"), Err: errors.New("invalid signature")},
		result("bybit", "acc3", entry("ALI", "10")),
	}, testNow)
	prev := RowFromValues(Values{"binance.cold.ALI": "0", "binance.cold.USDT": "0"})

	row, report := b.Build(snap, freshQuote("ALI", "0.02"), prev, testNow)

	assert.Equal(t, []string{"binance/acc1"}, report.Missing)
	assert.True(t, report.Degraded)
	assert.Equal(t, "0", row.Values()["binance.main.ALI"])
	assert.Equal(t, "10", row.Values()["cumulative.ALI"])
	assert.Equal(t, CommentSkewedPrimary, row.Values()[ColComment])
	assert.Equal(t, "100.00", row.Values()[ColImbalancePct])
}

func TestCEXBuilder_DisabledPriceUsesPreviousRow(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	snap := balance.Aggregate([]balance.FetchResult{
		result("binance", "acc1", entry("ALI", "5000"), entry("USDT", "100")),
		result("bybit", "acc3"),
	}, testNow)
	prev := RowFromValues(Values{
		"binance.cold.ALI":  "0",
		"binance.cold.USDT": "0",
		"price.ALI":         "0.02",
	})
	disabled := pricing.Quote{"ALI": {Value: decimal.Zero, Origin: pricing.OriginNone}}

	row, report := b.Build(snap, disabled, prev, testNow)
	v := row.Values()

	assert.Equal(t, PricePreviousRow, report.PriceSource)
	assert.False(t, report.PriceUnknown)
	assert.Equal(t, "0.02", v["price.ALI"])
	assert.Equal(t, "100.00", v[ColAssetUSDValuation])
	assert.Equal(t, "200.00", v[ColCumulativeUSDValuation])
	assert.Equal(t, CommentBalanced, v[ColComment])
	assert.Equal(t, "0.00", v[ColImbalancePct])
}

func TestCEXBuilder_PriceUnavailable(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	snap := balance.Aggregate([]balance.FetchResult{
		result("binance", "acc1", entry("ALI", "5000"), entry("USDT", "100")),
		result("bybit", "acc3"),
	}, testNow)
	prev := RowFromValues(Values{"binance.cold.ALI": "0", "binance.cold.USDT": "0", "price.ALI": "0"})

	row, report := b.Build(snap, pricing.Quote{}, prev, testNow)

	assert.True(t, report.PriceUnknown)
	assert.Equal(t, PriceNone, report.PriceSource)
	assert.Equal(t, CommentNoPrice, row.Values()[ColComment])
	assert.Equal(t, "0.00", row.Values()[ColImbalancePct])
	assert.Equal(t, "0", row.Values()["price.ALI"])
}

func TestCEXBuilder_LastKnownPrice(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	quote := pricing.Quote{"ALI": {Value: dec("0.03"), Origin: pricing.OriginLastKnown}}

	_, report := b.Build(nil, quote, nil, testNow)

	assert.Equal(t, PriceLastKnown, report.PriceSource)
}

func TestCEXLayout_Columns(t *testing.T) {
	layout := testCEXLayout(t)

	assert.Equal(t, []string{
		"date",
		"binance.main.ALI", "binance.main.USDT",
		"binance.cold.ALI", "binance.cold.USDT",
		"binance.total.ALI", "binance.total.USDT",
		"bybit.mm.ALI", "bybit.mm.USDT",
		"cumulative.ALI", "cumulative.USDT",
		"cumulative_quote", "price.ALI",
		"asset_usd_valuation", "cumulative_usd_valuation", "imbalance_pct", "comment",
	}, layout.Columns())
}

func TestNewCEXLayout_InvalidSlot(t *testing.T) {
	_, err := NewCEXLayout(config.CEXLedger{
		PrimaryAsset: "ALI",
		Groups:       []config.LedgerGroup{{Venue: "x", Slots: []config.LedgerSlot{{Kind: "magic", Column: "c"}}}},
	})
	assert.ErrorIs(t, err, ErrInvalidSlotKind)

	_, err = NewCEXLayout(config.CEXLedger{})
	assert.ErrorIs(t, err, ErrNoPrimaryAsset)
}

func TestCEXBuilder_MappedExchangeNameFillsLiveSlot(t *testing.T) {
	b := NewCEXBuilder(testCEXLayout(t), logger.Nop())
	acc := balance.AccountDescriptor{AccountID: "acc1", Exchange: "Binance Spot", VenueID: "binance"}

	b1 := balance.Balances{}
	b1.Add(entry("ALI", "100"))
	snap := balance.Aggregate([]balance.FetchResult{
		{Key: acc.Key(), Balances: b1},
		result("bybit", "acc3"),
	}, testNow)

	row, report := b.Build(snap, freshQuote("ALI", "0.02"), nil, testNow)

	assert.Equal(t, "100", row.Values()["binance.main.ALI"])
	assert.NotContains(t, report.Missing, "binance/acc1")
}
