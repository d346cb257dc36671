package pricefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// staleAfter marks a quote stale once the upstream has gone quiet for a
// pair this long.
const staleAfter = 15 * time.Second

// LiveFeed consumes quotes from an upstream WebSocket stream. Ticks are
// cached per pair and aggregated into one-minute candles so Candles works
// without a separate history endpoint.
type LiveFeed struct {
	url string
	log *zap.Logger

	mu      sync.RWMutex
	quotes  map[string]Quote
	candles map[string][]Candle

	cancel context.CancelFunc
	done   chan struct{}
}

type liveTick struct {
	Pair        string  `json:"pair"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	TimestampMs int64   `json:"timestamp_ms"`
}

func NewLiveFeed(url string, logger *zap.Logger) *LiveFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveFeed{
		url:     url,
		log:     logger.Named("pricefeed"),
		quotes:  make(map[string]Quote),
		candles: make(map[string][]Candle),
	}
}

// Start launches the read loop. The connection is re-dialed with backoff
// on any error until Stop is called.
func (f *LiveFeed) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx)
	f.log.Info("live feed started", zap.String("url", f.url))
}

func (f *LiveFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.log.Info("live feed stopped")
}

func (f *LiveFeed) run(ctx context.Context) {
	defer close(f.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		f.readLoop(ctx, conn)
		conn.Close()
	}
}

func (f *LiveFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn("read failed, reconnecting", zap.Error(err))
			}
			return
		}
		var tick liveTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			f.log.Warn("bad tick", zap.Error(err))
			continue
		}
		f.apply(tick)
	}
}

func (f *LiveFeed) apply(tick liveTick) {
	if !KnownPair(tick.Pair) || tick.Bid <= 0 || tick.Ask <= 0 {
		return
	}
	ts := time.UnixMilli(tick.TimestampMs).UTC()
	bid := decimal.NewFromFloat(tick.Bid)
	ask := decimal.NewFromFloat(tick.Ask)

	f.mu.Lock()
	f.quotes[tick.Pair] = Quote{
		Pair:      tick.Pair,
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts,
		Status:    SpreadNormal,
	}
	f.appendTickLocked(tick.Pair, ts, bid.Add(ask).Div(decimal.NewFromInt(2)))
	f.mu.Unlock()
}

// appendTickLocked folds a mid price into the pair's one-minute candle
// series, keeping at most 24h of bars.
func (f *LiveFeed) appendTickLocked(pair string, ts time.Time, mid decimal.Decimal) {
	bucket := ts.Unix() - ts.Unix()%60
	series := f.candles[pair]
	if n := len(series); n > 0 && series[n-1].Time == bucket {
		c := &series[n-1]
		if mid.GreaterThan(c.High) {
			c.High = mid
		}
		if mid.LessThan(c.Low) {
			c.Low = mid
		}
		c.Close = mid
		return
	}
	series = append(series, Candle{Time: bucket, Open: mid, High: mid, Low: mid, Close: mid})
	if len(series) > 1440 {
		series = series[len(series)-1440:]
	}
	f.candles[pair] = series
}

func (f *LiveFeed) Quote(pair string) (Quote, error) {
	if !KnownPair(pair) {
		return Quote{}, ErrUnknownPair
	}
	f.mu.RLock()
	q, ok := f.quotes[pair]
	f.mu.RUnlock()
	if !ok {
		return Quote{}, ErrNoQuote
	}
	if time.Since(q.Timestamp) > staleAfter {
		q.Status = SpreadStale
	}
	return q, nil
}

func (f *LiveFeed) Candles(pair string, interval time.Duration, limit int) ([]Candle, error) {
	if !KnownPair(pair) {
		return nil, ErrUnknownPair
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	f.mu.RLock()
	base := make([]Candle, len(f.candles[pair]))
	copy(base, f.candles[pair])
	f.mu.RUnlock()

	out := aggregate(base, interval)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func aggregate(base []Candle, interval time.Duration) []Candle {
	step := int64(interval.Seconds())
	if step <= 60 || len(base) == 0 {
		return base
	}
	out := make([]Candle, 0, len(base))
	var cur *Candle
	for _, c := range base {
		bucket := c.Time - c.Time%step
		if cur == nil || cur.Time != bucket {
			out = append(out, Candle{Time: bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
			cur = &out[len(out)-1]
			continue
		}
		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
	}
	return out
}
