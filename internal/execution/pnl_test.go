package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxarena/internal/pricefeed"
	"fxarena/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLotsToUnits(t *testing.T) {
	assert.Equal(t, int64(100_000), lotsToUnits(dec("1")))
	assert.Equal(t, int64(50_000), lotsToUnits(dec("0.5")))
	assert.Equal(t, int64(150_000), lotsToUnits(dec("1.5")))
	assert.Equal(t, int64(1), lotsToUnits(dec("0.00001")))
	assert.Equal(t, int64(0), lotsToUnits(dec("0.000001")))
}

func TestFillPriceAdverse(t *testing.T) {
	q := pricefeed.Quote{Pair: "EUR-USD", Bid: dec("1.0998"), Ask: dec("1.1002")}

	// 0.5 pip markup, 1 pip max slippage, full slip sample.
	buy := fillPrice(q, types.SideBuy, dec("0.5"), dec("1"), dec("1"))
	require.True(t, buy.Equal(dec("1.10035")), "got %s", buy)

	sell := fillPrice(q, types.SideSell, dec("0.5"), dec("1"), dec("1"))
	require.True(t, sell.Equal(dec("1.09965")), "got %s", sell)

	// No markup, no slippage: raw quote.
	assert.True(t, fillPrice(q, types.SideBuy, decimal.Zero, decimal.Zero, decimal.Zero).Equal(q.Ask))
	assert.True(t, fillPrice(q, types.SideSell, decimal.Zero, decimal.Zero, decimal.Zero).Equal(q.Bid))
}

func TestFillPriceJPYPip(t *testing.T) {
	q := pricefeed.Quote{Pair: "USD-JPY", Bid: dec("148.49"), Ask: dec("148.51")}
	buy := fillPrice(q, types.SideBuy, dec("1"), decimal.Zero, decimal.Zero)
	require.True(t, buy.Equal(dec("148.52")), "got %s", buy)
}

func TestRealizedPnLCentsUSDQuoted(t *testing.T) {
	// Long EUR-USD: 50 pips on half a lot is $250.
	got := realizedPnLCents("EUR-USD", types.SideBuy, dec("1.1000"), dec("1.1050"), 50_000)
	assert.Equal(t, int64(25_000), got)

	// Short profits when price falls.
	got = realizedPnLCents("EUR-USD", types.SideSell, dec("1.1050"), dec("1.1000"), 50_000)
	assert.Equal(t, int64(25_000), got)

	// Long losing.
	got = realizedPnLCents("EUR-USD", types.SideBuy, dec("1.1050"), dec("1.1000"), 50_000)
	assert.Equal(t, int64(-25_000), got)
}

func TestRealizedPnLCentsQuoteCurrencyConversion(t *testing.T) {
	// USD-JPY: 100 yen of profit converts to dollars at the exit price.
	// (149.00-148.00) * 100000 = 100000 JPY; / 149.00 = 671.14 USD.
	got := realizedPnLCents("USD-JPY", types.SideBuy, dec("148.00"), dec("149.00"), 100_000)
	assert.Equal(t, int64(67_114), got)
}

func TestWeightedAvg(t *testing.T) {
	avg := weightedAvg(dec("1.1000"), 100_000, dec("1.1010"), 100_000)
	require.True(t, avg.Equal(dec("1.1005")), "got %s", avg)

	// No prior volume: the new price wins outright.
	avg = weightedAvg(decimal.Zero, 0, dec("1.2345"), 70_000)
	require.True(t, avg.Equal(dec("1.2345")))
}
