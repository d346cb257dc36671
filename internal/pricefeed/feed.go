// Package pricefeed supplies bid/ask quotes and historical candles for the
// fixed set of tradable currency pairs. Two interchangeable backends exist:
// a synthetic random-walk generator and a live upstream WebSocket client.
package pricefeed

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when a pair has no live price. Transient: callers
// may retry once the feed recovers.
var ErrNoQuote = errors.New("pricefeed: no quote available")

// ErrUnknownPair is returned for pairs outside the tradable set.
var ErrUnknownPair = errors.New("pricefeed: unknown pair")

type SpreadStatus string

const (
	SpreadNormal  SpreadStatus = "normal"
	SpreadWidened SpreadStatus = "widened"
	SpreadStale   SpreadStatus = "stale"
)

type Quote struct {
	Pair      string          `json:"pair"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
	Status    SpreadStatus    `json:"status"`
}

type Candle struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Feed is the quote/candle source injected into the execution engine.
// Candles returns a fresh snapshot, oldest first.
type Feed interface {
	Quote(pair string) (Quote, error)
	Candles(pair string, interval time.Duration, limit int) ([]Candle, error)
}

type pairProfile struct {
	Base float64 // anchor mid price
	Vol  float64 // per-second volatility
	Prec int32   // display precision
}

var pairProfiles = map[string]pairProfile{
	"EUR-USD": {Base: 1.0850, Vol: 0.0000045, Prec: 5},
	"GBP-USD": {Base: 1.2700, Vol: 0.0000060, Prec: 5},
	"AUD-USD": {Base: 0.6550, Vol: 0.0000040, Prec: 5},
	"NZD-USD": {Base: 0.6050, Vol: 0.0000040, Prec: 5},
	"USD-JPY": {Base: 148.50, Vol: 0.00055, Prec: 3},
	"USD-CHF": {Base: 0.8800, Vol: 0.0000040, Prec: 5},
	"USD-CAD": {Base: 1.3600, Vol: 0.0000045, Prec: 5},
}

// Pairs returns the tradable pair symbols.
func Pairs() []string {
	out := make([]string, 0, len(pairProfiles))
	for p := range pairProfiles {
		out = append(out, p)
	}
	return out
}

// KnownPair reports whether the symbol belongs to the tradable set.
func KnownPair(pair string) bool {
	_, ok := pairProfiles[pair]
	return ok
}

// JPYQuoted reports whether the pair is quoted in yen.
func JPYQuoted(pair string) bool {
	return strings.HasSuffix(pair, "-JPY")
}

// USDQuoted reports whether the pair is quoted in US dollars (XXX-USD).
func USDQuoted(pair string) bool {
	return strings.HasSuffix(pair, "-USD")
}

// PipSize is the smallest standard increment for the pair: 0.01 for
// JPY-quoted pairs, 0.0001 otherwise.
func PipSize(pair string) decimal.Decimal {
	if JPYQuoted(pair) {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}
