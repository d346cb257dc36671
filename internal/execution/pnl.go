package execution

import (
	"github.com/shopspring/decimal"

	"fxarena/internal/pricefeed"
	"fxarena/internal/types"
)

// UnitsPerLot is the standard lot size in base-currency units.
const UnitsPerLot int64 = 100_000

var hundred = decimal.NewFromInt(100)

// lotsToUnits converts a decimal lot count to integer base units,
// rounding to the nearest unit.
func lotsToUnits(lots decimal.Decimal) int64 {
	return lots.Mul(decimal.NewFromInt(UnitsPerLot)).Round(0).IntPart()
}

func unitsToLots(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(decimal.NewFromInt(UnitsPerLot))
}

// fillPrice applies the spread markup plus bounded random slippage against
// the trader: ask rises for buys, bid falls for sells. slip01 is a sample
// in [0, 1) scaling the maximum slippage.
func fillPrice(quote pricefeed.Quote, side types.Side, markupPips, maxSlippagePips, slip01 decimal.Decimal) decimal.Decimal {
	pip := pricefeed.PipSize(quote.Pair)
	adverse := markupPips.Add(maxSlippagePips.Mul(slip01)).Mul(pip)
	if side == types.SideBuy {
		return quote.Ask.Add(adverse)
	}
	return quote.Bid.Sub(adverse)
}

// realizedPnLCents computes P&L in USD cents for closing `units` of a
// position entered at entry and exited at exit.
//
// For USD-quoted pairs (XXX-USD) the price difference is already dollars
// per unit. For pairs quoted in another currency (USD-XXX) the difference
// is in quote currency and converts to dollars at the exit price. The
// asymmetry is deliberate: P&L is always expressed in USD cents.
func realizedPnLCents(pair string, side types.Side, entry, exit decimal.Decimal, units int64) int64 {
	diff := exit.Sub(entry)
	if side == types.SideSell {
		diff = entry.Sub(exit)
	}
	u := decimal.NewFromInt(units)
	usd := diff.Mul(u)
	if !pricefeed.USDQuoted(pair) {
		usd = usd.Div(exit)
	}
	return usd.Mul(hundred).Round(0).IntPart()
}

// weightedAvg returns the volume-weighted average of an existing average
// over oldUnits and a new price over addUnits.
func weightedAvg(oldAvg decimal.Decimal, oldUnits int64, price decimal.Decimal, addUnits int64) decimal.Decimal {
	if oldUnits <= 0 {
		return price
	}
	o := decimal.NewFromInt(oldUnits)
	a := decimal.NewFromInt(addUnits)
	return oldAvg.Mul(o).Add(price.Mul(a)).Div(o.Add(a))
}
