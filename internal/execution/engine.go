// Package execution turns trade intents into filled deals: it nets fills
// against existing positions, realizes P&L on reducing fills, and pushes
// the cash/equity delta into the competition entry atomically with the
// position, trade and deal writes.
package execution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxarena/internal/metrics"
	"fxarena/internal/model"
	"fxarena/internal/pricefeed"
	"fxarena/internal/types"
)

// Config carries the engine-wide fill defaults. Per-order overrides come
// in on the request.
type Config struct {
	SpreadMarkupPips decimal.Decimal
	MaxSlippagePips  decimal.Decimal
	// Slip01 samples the slippage fraction in [0, 1). Defaults to
	// math/rand; tests inject a constant.
	Slip01 func() float64
}

type Engine struct {
	store Store
	feed  pricefeed.Feed
	cfg   Config
	log   *zap.Logger
}

func NewEngine(store Store, feed pricefeed.Feed, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Slip01 == nil {
		cfg.Slip01 = rand.Float64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, feed: feed, cfg: cfg, log: logger.Named("execution")}
}

type OrderRequest struct {
	CompetitionID string
	UserID        string
	Pair          string
	Side          types.Side
	Lots          decimal.Decimal
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	// Optional per-order overrides; nil uses the engine defaults.
	SpreadMarkupPips *decimal.Decimal
	MaxSlippagePips  *decimal.Decimal
}

// OrderResult reports the fill. A flip produces two deals (the closing
// leg then the opening leg); every other fill produces one. Position is
// nil when the fill closed the exposure completely.
type OrderResult struct {
	Deals            []model.Deal
	Position         *model.Position
	RealizedPnLCents int64
}

// ExecuteMarketOrder fills a market order at the current quote plus the
// adverse spread markup and slippage, then applies the netting algorithm.
func (e *Engine) ExecuteMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if !req.Side.Valid() {
		return OrderResult{}, ErrInvalidSide
	}
	units := lotsToUnits(req.Lots)
	if units <= 0 {
		return OrderResult{}, fmt.Errorf("%w: %s lots", ErrInvalidLots, req.Lots)
	}
	return e.execute(ctx, req, units, false)
}

// PartialCloseRequest reduces an open position by lots or by percentage.
// Exactly one of CloseLots/ClosePercent should be set; amounts beyond the
// open quantity clamp to a full close.
type PartialCloseRequest struct {
	CompetitionID string
	UserID        string
	PositionID    string
	CloseLots     *decimal.Decimal
	ClosePercent  *decimal.Decimal
}

// PartialClosePosition delegates to the market-order path with the
// opposite side and the computed unit quantity.
func (e *Engine) PartialClosePosition(ctx context.Context, req PartialCloseRequest) (OrderResult, error) {
	pos, err := e.store.GetPosition(ctx, req.CompetitionID, req.UserID, req.PositionID)
	if err != nil {
		return OrderResult{}, err
	}
	var units int64
	switch {
	case req.CloseLots != nil:
		if req.CloseLots.LessThanOrEqual(decimal.Zero) {
			return OrderResult{}, fmt.Errorf("%w: %s lots", ErrInvalidLots, req.CloseLots)
		}
		units = lotsToUnits(*req.CloseLots)
	case req.ClosePercent != nil:
		pct := *req.ClosePercent
		if pct.LessThanOrEqual(decimal.Zero) || pct.GreaterThan(hundred) {
			return OrderResult{}, fmt.Errorf("%w: %s%%", ErrInvalidLots, pct)
		}
		units = decimal.NewFromInt(pos.Units).Mul(pct).Div(hundred).Round(0).IntPart()
	default:
		return OrderResult{}, fmt.Errorf("%w: close lots or percent required", ErrInvalidLots)
	}
	if units <= 0 {
		return OrderResult{}, fmt.Errorf("%w: rounds to zero units", ErrInvalidLots)
	}
	if units > pos.Units {
		units = pos.Units
	}
	return e.execute(ctx, OrderRequest{
		CompetitionID: req.CompetitionID,
		UserID:        req.UserID,
		Pair:          pos.Pair,
		Side:          pos.Side.Opposite(),
	}, units, true)
}

// closePositionUnits fully closes a position at market. Used by the
// stop-loss/take-profit monitor.
func (e *Engine) closePositionUnits(ctx context.Context, pos model.Position) (OrderResult, error) {
	return e.execute(ctx, OrderRequest{
		CompetitionID: pos.CompetitionID,
		UserID:        pos.UserID,
		Pair:          pos.Pair,
		Side:          pos.Side.Opposite(),
	}, pos.Units, true)
}

func (e *Engine) execute(ctx context.Context, req OrderRequest, units int64, reduceOnly bool) (OrderResult, error) {
	quote, err := e.feed.Quote(req.Pair)
	if err != nil {
		return OrderResult{}, err
	}
	if quote.Status == pricefeed.SpreadStale {
		return OrderResult{}, fmt.Errorf("%w: stale quote for %s", pricefeed.ErrNoQuote, req.Pair)
	}
	markup := e.cfg.SpreadMarkupPips
	if req.SpreadMarkupPips != nil {
		markup = *req.SpreadMarkupPips
	}
	maxSlip := e.cfg.MaxSlippagePips
	if req.MaxSlippagePips != nil {
		maxSlip = *req.MaxSlippagePips
	}
	price := fillPrice(quote, req.Side, markup, maxSlip, decimal.NewFromFloat(e.cfg.Slip01()))

	var res OrderResult
	err = e.store.Atomic(ctx, req.CompetitionID, req.UserID, func(tx Tx) error {
		pos, err := tx.PositionByPair(req.Pair)
		if err != nil {
			return err
		}
		if reduceOnly {
			if pos == nil || pos.Side == req.Side {
				return ErrPositionNotFound
			}
			if units > pos.Units {
				units = pos.Units
			}
		}
		res, err = e.net(tx, req, pos, units, price)
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}
	metrics.OrdersExecuted.WithLabelValues(req.Pair, string(req.Side)).Inc()
	metrics.DealsRecorded.Add(float64(len(res.Deals)))
	if res.RealizedPnLCents != 0 {
		metrics.RealizedPnLCents.Add(math.Abs(float64(res.RealizedPnLCents)))
	}
	e.log.Info("order filled",
		zap.String("competition", req.CompetitionID),
		zap.String("user", req.UserID),
		zap.String("pair", req.Pair),
		zap.String("side", string(req.Side)),
		zap.Int64("units", units),
		zap.String("price", price.String()),
		zap.Int64("realized_cents", res.RealizedPnLCents),
	)
	return res, nil
}

// net applies the netting algorithm for a fill of `units` on req.Side at
// `price` against the existing position (nil when flat).
func (e *Engine) net(tx Tx, req OrderRequest, pos *model.Position, units int64, price decimal.Decimal) (OrderResult, error) {
	now := time.Now().UTC()

	// Flat, or adding in the same direction.
	if pos == nil {
		return e.open(tx, req, units, price, now)
	}
	if pos.Side == req.Side {
		return e.averageIn(tx, req, *pos, units, price, now)
	}

	// Opposing fill: reduce, close, or flip.
	trade, err := tx.Trade(pos.TradeID)
	if err != nil {
		return OrderResult{}, err
	}
	closeUnits := units
	if closeUnits > pos.Units {
		closeUnits = pos.Units
	}
	pnl := realizedPnLCents(req.Pair, pos.Side, pos.AvgEntryPrice, price, closeUnits)

	trade.AvgExitPrice = weightedAvg(trade.AvgExitPrice, trade.UnitsOut, price, closeUnits)
	trade.UnitsOut += closeUnits
	trade.RealizedPnLCents += pnl

	outDeal := model.Deal{
		ID:               uuid.New().String(),
		TradeID:          trade.ID,
		CompetitionID:    req.CompetitionID,
		UserID:           req.UserID,
		Pair:             req.Pair,
		Side:             req.Side,
		Units:            closeUnits,
		Lots:             unitsToLots(closeUnits),
		Price:            price,
		Kind:             types.DealKindOut,
		RealizedPnLCents: pnl,
		CreatedAt:        now,
	}
	res := OrderResult{Deals: []model.Deal{outDeal}, RealizedPnLCents: pnl}

	if units < pos.Units {
		// Partial reduce: quantity shrinks, average entry is untouched.
		pos.Units -= units
		pos.RealizedPnLCents += pnl
		pos.UpdatedAt = now
		if err := tx.UpdatePosition(*pos); err != nil {
			return OrderResult{}, err
		}
		if err := tx.UpdateTrade(trade); err != nil {
			return OrderResult{}, err
		}
		if err := tx.AppendDeal(outDeal); err != nil {
			return OrderResult{}, err
		}
		res.Position = pos
		return res, e.applyRealized(tx, pnl, now)
	}

	// Exact close or flip: the old trade ends here.
	trade.Status = types.TradeStatusClosed
	trade.ClosedAt = &now
	if err := tx.UpdateTrade(trade); err != nil {
		return OrderResult{}, err
	}
	if err := tx.DeletePosition(pos.ID); err != nil {
		return OrderResult{}, err
	}
	if err := tx.AppendDeal(outDeal); err != nil {
		return OrderResult{}, err
	}

	if residual := units - pos.Units; residual > 0 {
		// Flip: the remainder opens a fresh trade on the new side. Two
		// deals keep the audit trail faithful to both legs.
		openRes, err := e.open(tx, req, residual, price, now)
		if err != nil {
			return OrderResult{}, err
		}
		res.Deals = append(res.Deals, openRes.Deals...)
		res.Position = openRes.Position
	}
	return res, e.applyRealized(tx, pnl, now)
}

func (e *Engine) open(tx Tx, req OrderRequest, units int64, price decimal.Decimal, now time.Time) (OrderResult, error) {
	trade := model.Trade{
		ID:            uuid.New().String(),
		CompetitionID: req.CompetitionID,
		UserID:        req.UserID,
		Pair:          req.Pair,
		Side:          req.Side,
		UnitsIn:       units,
		AvgEntryPrice: price,
		Status:        types.TradeStatusOpen,
		OpenedAt:      now,
	}
	pos := model.Position{
		ID:            uuid.New().String(),
		CompetitionID: req.CompetitionID,
		UserID:        req.UserID,
		Pair:          req.Pair,
		Side:          req.Side,
		Units:         units,
		AvgEntryPrice: price,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		TradeID:       trade.ID,
		OpenedAt:      now,
		UpdatedAt:     now,
	}
	deal := model.Deal{
		ID:            uuid.New().String(),
		TradeID:       trade.ID,
		CompetitionID: req.CompetitionID,
		UserID:        req.UserID,
		Pair:          req.Pair,
		Side:          req.Side,
		Units:         units,
		Lots:          unitsToLots(units),
		Price:         price,
		Kind:          types.DealKindIn,
		CreatedAt:     now,
	}
	if err := tx.CreateTrade(trade); err != nil {
		return OrderResult{}, err
	}
	if err := tx.CreatePosition(pos); err != nil {
		return OrderResult{}, err
	}
	if err := tx.AppendDeal(deal); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Deals: []model.Deal{deal}, Position: &pos}, nil
}

func (e *Engine) averageIn(tx Tx, req OrderRequest, pos model.Position, units int64, price decimal.Decimal, now time.Time) (OrderResult, error) {
	trade, err := tx.Trade(pos.TradeID)
	if err != nil {
		return OrderResult{}, err
	}
	pos.AvgEntryPrice = weightedAvg(pos.AvgEntryPrice, pos.Units, price, units)
	pos.Units += units
	pos.UpdatedAt = now
	trade.AvgEntryPrice = weightedAvg(trade.AvgEntryPrice, trade.UnitsIn, price, units)
	trade.UnitsIn += units

	deal := model.Deal{
		ID:            uuid.New().String(),
		TradeID:       trade.ID,
		CompetitionID: req.CompetitionID,
		UserID:        req.UserID,
		Pair:          req.Pair,
		Side:          req.Side,
		Units:         units,
		Lots:          unitsToLots(units),
		Price:         price,
		Kind:          types.DealKindIn,
		CreatedAt:     now,
	}
	if err := tx.UpdatePosition(pos); err != nil {
		return OrderResult{}, err
	}
	if err := tx.UpdateTrade(trade); err != nil {
		return OrderResult{}, err
	}
	if err := tx.AppendDeal(deal); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Deals: []model.Deal{deal}, Position: &pos}, nil
}

// applyRealized pushes realized P&L into the entry's cash and equity and
// advances the high-water mark. Runs inside the same transaction as the
// position/trade/deal writes.
func (e *Engine) applyRealized(tx Tx, pnlCents int64, now time.Time) error {
	if pnlCents == 0 {
		return nil
	}
	entry, err := tx.Entry()
	if err != nil {
		return err
	}
	entry.CashCents += pnlCents
	entry.EquityCents += pnlCents
	if entry.EquityCents > entry.HighWaterMarkCents {
		entry.HighWaterMarkCents = entry.EquityCents
	}
	entry.UpdatedAt = now
	return tx.UpdateEntry(entry)
}

// UpdatePositionSLTP sets or clears the stop-loss/take-profit prices.
// Pure metadata: quantity and P&L are untouched.
func (e *Engine) UpdatePositionSLTP(ctx context.Context, competitionID, userID, positionID string, stopLoss, takeProfit *decimal.Decimal) (model.Position, error) {
	var out model.Position
	err := e.store.Atomic(ctx, competitionID, userID, func(tx Tx) error {
		pos, err := tx.PositionByID(positionID)
		if err != nil {
			return err
		}
		if pos == nil || pos.UserID != userID || pos.CompetitionID != competitionID {
			return ErrPositionNotFound
		}
		pos.StopLoss = stopLoss
		pos.TakeProfit = takeProfit
		pos.UpdatedAt = time.Now().UTC()
		if err := tx.UpdatePosition(*pos); err != nil {
			return err
		}
		out = *pos
		return nil
	})
	return out, err
}

func (e *Engine) GetDeals(ctx context.Context, competitionID, userID string, limit int) ([]model.Deal, error) {
	return e.store.ListDeals(ctx, competitionID, userID, limit)
}

func (e *Engine) GetTrades(ctx context.Context, competitionID, userID string, limit int) ([]model.Trade, error) {
	return e.store.ListTrades(ctx, competitionID, userID, limit)
}

func (e *Engine) OpenPositions(ctx context.Context, competitionID, userID string) ([]model.Position, error) {
	return e.store.ListOpenPositions(ctx, competitionID, userID)
}

// UnrealizedPnLCents marks every open position for the user against the
// live quote: longs close at bid, shorts at ask. Positions whose pair has
// no quote contribute zero rather than failing the whole read.
func (e *Engine) UnrealizedPnLCents(ctx context.Context, competitionID, userID string) (int64, error) {
	positions, err := e.store.ListOpenPositions(ctx, competitionID, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, pos := range positions {
		quote, err := e.feed.Quote(pos.Pair)
		if err != nil {
			continue
		}
		mark := quote.Bid
		if pos.Side == types.SideSell {
			mark = quote.Ask
		}
		total += realizedPnLCents(pos.Pair, pos.Side, pos.AvgEntryPrice, mark, pos.Units)
	}
	return total, nil
}
