package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxarena/internal/metrics"
	"fxarena/internal/model"
	"fxarena/internal/pricefeed"
	"fxarena/internal/types"
)

// Monitor watches open positions and closes the ones whose stop-loss or
// take-profit price has been reached. Triggered closes go through the same
// fill path as manual orders.
type Monitor struct {
	engine   *Engine
	store    Store
	feed     pricefeed.Feed
	interval time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(engine *Engine, store Store, feed pricefeed.Feed, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{engine: engine, store: store, feed: feed, interval: interval, log: logger.Named("sltp")}
}

func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Sweep scans every open position once. Exported so tests can drive the
// monitor without the ticker.
func (m *Monitor) Sweep(ctx context.Context) {
	positions, err := m.store.ListAllOpenPositions(ctx)
	if err != nil {
		m.log.Warn("position scan failed", zap.Error(err))
		return
	}
	for _, pos := range positions {
		if pos.StopLoss == nil && pos.TakeProfit == nil {
			continue
		}
		quote, err := m.feed.Quote(pos.Pair)
		if err != nil {
			continue
		}
		kind, hit := triggered(pos, quote)
		if !hit {
			continue
		}
		if _, err := m.engine.closePositionUnits(ctx, pos); err != nil {
			// Position may already be gone if the user closed it
			// concurrently; anything else is worth surfacing.
			if !errors.Is(err, ErrPositionNotFound) {
				m.log.Error("triggered close failed",
					zap.String("position", pos.ID), zap.Error(err))
			}
			continue
		}
		metrics.StopTriggers.WithLabelValues(kind).Inc()
		m.log.Info("protective close",
			zap.String("position", pos.ID),
			zap.String("pair", pos.Pair),
			zap.String("side", string(pos.Side)),
			zap.String("trigger", kind))
	}
}

// triggered checks the protective prices against the side the position
// would close at: longs close on bid, shorts on ask.
func triggered(pos model.Position, quote pricefeed.Quote) (string, bool) {
	var mark decimal.Decimal
	if pos.Side == types.SideBuy {
		mark = quote.Bid
		if pos.StopLoss != nil && mark.LessThanOrEqual(*pos.StopLoss) {
			return "stop_loss", true
		}
		if pos.TakeProfit != nil && mark.GreaterThanOrEqual(*pos.TakeProfit) {
			return "take_profit", true
		}
		return "", false
	}
	mark = quote.Ask
	if pos.StopLoss != nil && mark.GreaterThanOrEqual(*pos.StopLoss) {
		return "stop_loss", true
	}
	if pos.TakeProfit != nil && mark.LessThanOrEqual(*pos.TakeProfit) {
		return "take_profit", true
	}
	return "", false
}
