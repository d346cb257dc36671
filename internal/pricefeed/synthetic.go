package pricefeed

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxarena/internal/metrics"
)

// SyntheticFeed generates quotes with a mean-reverting random walk. Prices
// are a pure function of (seed, pair, time), so two feeds built with the
// same seed agree on history and candles match live quotes.
type SyntheticFeed struct {
	seed       int64
	spreadPips float64
	log        *zap.Logger

	mu     sync.RWMutex
	quotes map[string]Quote

	cancel context.CancelFunc
	done   chan struct{}
}

type SyntheticConfig struct {
	Seed       int64   // noise seed; 0 means 1
	SpreadPips float64 // half-spread applied each side of mid; 0 means 1.2
	Logger     *zap.Logger
}

func NewSyntheticFeed(cfg SyntheticConfig) *SyntheticFeed {
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.SpreadPips <= 0 {
		cfg.SpreadPips = 1.2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	f := &SyntheticFeed{
		seed:       cfg.Seed,
		spreadPips: cfg.SpreadPips,
		log:        cfg.Logger.Named("pricefeed"),
		quotes:     make(map[string]Quote, len(pairProfiles)),
	}
	f.refresh(time.Now().UTC())
	return f
}

// Start launches the background refresh loop. Stop must be called on
// shutdown.
func (f *SyntheticFeed) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				f.refresh(now.UTC())
			}
		}
	}()
	f.log.Info("synthetic feed started", zap.Int("pairs", len(pairProfiles)))
}

func (f *SyntheticFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.log.Info("synthetic feed stopped")
}

func (f *SyntheticFeed) Quote(pair string) (Quote, error) {
	if !KnownPair(pair) {
		return Quote{}, ErrUnknownPair
	}
	f.mu.RLock()
	q, ok := f.quotes[pair]
	f.mu.RUnlock()
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}

func (f *SyntheticFeed) Candles(pair string, interval time.Duration, limit int) ([]Candle, error) {
	profile, ok := pairProfiles[pair]
	if !ok {
		return nil, ErrUnknownPair
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	step := int64(interval.Seconds())
	end := time.Now().UTC().Unix()
	end -= end % step
	start := end - int64(limit-1)*step

	candles := make([]Candle, 0, limit)
	price := f.priceAt(pair, profile, start)
	for t := start; t <= end; t += step {
		open := price
		high := open
		low := open
		// sample intermediate ticks so wicks reflect intrabar movement
		sub := step / 12
		if sub < 1 {
			sub = 1
		}
		for tt := t + sub; tt <= t+step; tt += sub {
			price = f.evolve(pair, profile, tt, price, sub)
			if price > high {
				high = price
			}
			if price < low {
				low = price
			}
		}
		candles = append(candles, Candle{
			Time:  t,
			Open:  decimal.NewFromFloat(open).Round(profile.Prec),
			High:  decimal.NewFromFloat(high).Round(profile.Prec),
			Low:   decimal.NewFromFloat(low).Round(profile.Prec),
			Close: decimal.NewFromFloat(price).Round(profile.Prec),
		})
	}
	return candles, nil
}

func (f *SyntheticFeed) refresh(now time.Time) {
	t := now.Unix()
	f.mu.Lock()
	defer f.mu.Unlock()
	for pair, profile := range pairProfiles {
		mid := f.priceAt(pair, profile, t)
		halfSpread := f.spreadPips * pipFloat(pair) / 2.0
		prec := profile.Prec
		f.quotes[pair] = Quote{
			Pair:      pair,
			Bid:       decimal.NewFromFloat(mid - halfSpread).Round(prec),
			Ask:       decimal.NewFromFloat(mid + halfSpread).Round(prec),
			Timestamp: now,
			Status:    SpreadNormal,
		}
	}
	metrics.QuoteRefreshes.Inc()
}

// priceAt replays the walk from a fixed origin so the price at any instant
// is reproducible for a given seed.
func (f *SyntheticFeed) priceAt(pair string, p pairProfile, t int64) float64 {
	const step = 5
	origin := t - step*360
	price := p.Base
	for tt := origin; tt < t; tt += step {
		price = f.evolve(pair, p, tt, price, step)
	}
	return price
}

func (f *SyntheticFeed) evolve(pair string, p pairProfile, t int64, prev float64, step int64) float64 {
	mu := anchor(p, t)
	revert := (mu - prev) * 0.05
	vol := sessionVol(p, t)
	noise := f.randNorm(pair, t) * vol * math.Sqrt(float64(step))
	price := prev + revert + noise
	floor := p.Base * 0.7
	ceiling := p.Base * 1.4
	if price < floor {
		price = floor + math.Abs(noise)
	}
	if price > ceiling {
		price = ceiling - math.Abs(noise)
	}
	return price
}

func anchor(p pairProfile, t int64) float64 {
	d := float64(t) / 86400.0
	cycle := 1 + 0.003*math.Sin(d/9.0) + 0.0015*math.Sin(d/2.7)
	return p.Base * cycle
}

// sessionVol scales volatility by trading session (London/NY overlap is
// the most active).
func sessionVol(p pairProfile, t int64) float64 {
	hour := time.Unix(t, 0).UTC().Hour()
	mult := 1.0
	switch {
	case hour >= 7 && hour < 12:
		mult = 1.5
	case hour >= 12 && hour < 17:
		mult = 2.0
	case hour >= 17 && hour < 21:
		mult = 1.2
	default:
		mult = 0.6
	}
	return p.Vol * mult
}

func (f *SyntheticFeed) randNorm(pair string, t int64) float64 {
	h := f.seed
	for _, c := range pair {
		h = h*31 + int64(c)
	}
	u1 := rand01(h + t + 17)
	u2 := rand01(h + t + 71)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func rand01(seed int64) float64 {
	x := uint64(seed)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return float64(x%1000000)/1000000 + 0.000001
}

func pipFloat(pair string) float64 {
	if JPYQuoted(pair) {
		return 0.01
	}
	return 0.0001
}
