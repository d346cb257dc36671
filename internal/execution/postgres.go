package execution

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

// PostgresStore implements Store on pgx. Atomic opens one transaction and
// locks the competition entry row up front, which serializes every fill
// for the same (competition, user) and prevents mis-netting against a
// stale position read.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Atomic(ctx context.Context, competitionID, userID string, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var entryID string
	err = tx.QueryRow(ctx, `
		select id from entries where competition_id = $1 and user_id = $2 for update
	`, competitionID, userID).Scan(&entryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx, ctx: ctx, competitionID: competitionID, userID: userID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx            pgx.Tx
	ctx           context.Context
	competitionID string
	userID        string
}

const positionCols = `id, competition_id, user_id, pair, side, units, avg_entry_price,
	stop_loss, take_profit, realized_pnl_cents, trade_id, opened_at, updated_at`

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var side string
	err := row.Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.Pair, &side, &p.Units,
		&p.AvgEntryPrice, &p.StopLoss, &p.TakeProfit, &p.RealizedPnLCents,
		&p.TradeID, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Side = types.Side(side)
	return p, nil
}

func (t *pgTx) PositionByPair(pair string) (*model.Position, error) {
	p, err := scanPosition(t.tx.QueryRow(t.ctx, `
		select `+positionCols+` from positions
		where competition_id = $1 and user_id = $2 and pair = $3
		for update
	`, t.competitionID, t.userID, pair))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) PositionByID(id string) (*model.Position, error) {
	p, err := scanPosition(t.tx.QueryRow(t.ctx, `
		select `+positionCols+` from positions where id = $1 for update
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) CreatePosition(p model.Position) error {
	_, err := t.tx.Exec(t.ctx, `
		insert into positions (id, competition_id, user_id, pair, side, units, avg_entry_price,
			stop_loss, take_profit, realized_pnl_cents, trade_id, opened_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, p.ID, p.CompetitionID, p.UserID, p.Pair, string(p.Side), p.Units, p.AvgEntryPrice,
		p.StopLoss, p.TakeProfit, p.RealizedPnLCents, p.TradeID, p.OpenedAt, p.UpdatedAt)
	return err
}

func (t *pgTx) UpdatePosition(p model.Position) error {
	_, err := t.tx.Exec(t.ctx, `
		update positions
		set side = $2, units = $3, avg_entry_price = $4, stop_loss = $5,
			take_profit = $6, realized_pnl_cents = $7, updated_at = $8
		where id = $1
	`, p.ID, string(p.Side), p.Units, p.AvgEntryPrice, p.StopLoss, p.TakeProfit,
		p.RealizedPnLCents, p.UpdatedAt)
	return err
}

func (t *pgTx) DeletePosition(id string) error {
	_, err := t.tx.Exec(t.ctx, `delete from positions where id = $1`, id)
	return err
}

const tradeCols = `id, competition_id, user_id, pair, side, units_in, units_out,
	avg_entry_price, avg_exit_price, realized_pnl_cents, status, opened_at, closed_at`

func scanTrade(row pgx.Row) (model.Trade, error) {
	var tr model.Trade
	var side, status string
	var avgExit *decimal.Decimal
	err := row.Scan(&tr.ID, &tr.CompetitionID, &tr.UserID, &tr.Pair, &side, &tr.UnitsIn,
		&tr.UnitsOut, &tr.AvgEntryPrice, &avgExit, &tr.RealizedPnLCents, &status,
		&tr.OpenedAt, &tr.ClosedAt)
	if err != nil {
		return tr, err
	}
	tr.Side = types.Side(side)
	tr.Status = types.TradeStatus(status)
	if avgExit != nil {
		tr.AvgExitPrice = *avgExit
	}
	return tr, nil
}

func (t *pgTx) Trade(id string) (model.Trade, error) {
	tr, err := scanTrade(t.tx.QueryRow(t.ctx, `
		select `+tradeCols+` from trades where id = $1 for update
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trade{}, errTradeNotFound
	}
	return tr, err
}

func (t *pgTx) CreateTrade(tr model.Trade) error {
	_, err := t.tx.Exec(t.ctx, `
		insert into trades (id, competition_id, user_id, pair, side, units_in, units_out,
			avg_entry_price, avg_exit_price, realized_pnl_cents, status, opened_at, closed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, tr.ID, tr.CompetitionID, tr.UserID, tr.Pair, string(tr.Side), tr.UnitsIn, tr.UnitsOut,
		tr.AvgEntryPrice, tr.AvgExitPrice, tr.RealizedPnLCents, string(tr.Status),
		tr.OpenedAt, tr.ClosedAt)
	return err
}

func (t *pgTx) UpdateTrade(tr model.Trade) error {
	_, err := t.tx.Exec(t.ctx, `
		update trades
		set units_in = $2, units_out = $3, avg_entry_price = $4, avg_exit_price = $5,
			realized_pnl_cents = $6, status = $7, closed_at = $8
		where id = $1
	`, tr.ID, tr.UnitsIn, tr.UnitsOut, tr.AvgEntryPrice, tr.AvgExitPrice,
		tr.RealizedPnLCents, string(tr.Status), tr.ClosedAt)
	return err
}

func (t *pgTx) AppendDeal(d model.Deal) error {
	_, err := t.tx.Exec(t.ctx, `
		insert into deals (id, trade_id, competition_id, user_id, pair, side, units, lots,
			price, kind, realized_pnl_cents, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, d.ID, d.TradeID, d.CompetitionID, d.UserID, d.Pair, string(d.Side), d.Units, d.Lots,
		d.Price, string(d.Kind), d.RealizedPnLCents, d.CreatedAt)
	return err
}

func (t *pgTx) Entry() (model.Entry, error) {
	var e model.Entry
	err := t.tx.QueryRow(t.ctx, `
		select id, competition_id, user_id, cash_cents, equity_cents, high_water_mark_cents,
			drawdown_pct, disqualified, paid, created_at, updated_at
		from entries where competition_id = $1 and user_id = $2
	`, t.competitionID, t.userID).Scan(&e.ID, &e.CompetitionID, &e.UserID, &e.CashCents,
		&e.EquityCents, &e.HighWaterMarkCents, &e.DrawdownPct, &e.Disqualified, &e.Paid,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (t *pgTx) UpdateEntry(e model.Entry) error {
	_, err := t.tx.Exec(t.ctx, `
		update entries
		set cash_cents = $2, equity_cents = $3, high_water_mark_cents = $4,
			drawdown_pct = $5, disqualified = $6, paid = $7, updated_at = $8
		where id = $1
	`, e.ID, e.CashCents, e.EquityCents, e.HighWaterMarkCents, e.DrawdownPct,
		e.Disqualified, e.Paid, e.UpdatedAt)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, competitionID, userID, positionID string) (model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, `
		select `+positionCols+` from positions
		where id = $1 and competition_id = $2 and user_id = $3
	`, positionID, competitionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Position{}, ErrPositionNotFound
	}
	return p, err
}

func (s *PostgresStore) ListOpenPositions(ctx context.Context, competitionID, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		select `+positionCols+` from positions
		where competition_id = $1 and user_id = $2
		order by opened_at
	`, competitionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) ListAllOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `select `+positionCols+` from positions order by opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListDeals(ctx context.Context, competitionID, userID string, limit int) ([]model.Deal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select id, trade_id, competition_id, user_id, pair, side, units, lots, price, kind,
			realized_pnl_cents, created_at
		from deals
		where competition_id = $1 and user_id = $2
		order by created_at desc, id desc
		limit $3
	`, competitionID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		var d model.Deal
		var side, kind string
		if err := rows.Scan(&d.ID, &d.TradeID, &d.CompetitionID, &d.UserID, &d.Pair, &side,
			&d.Units, &d.Lots, &d.Price, &kind, &d.RealizedPnLCents, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Side = types.Side(side)
		d.Kind = types.DealKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListTrades(ctx context.Context, competitionID, userID string, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select `+tradeCols+` from trades
		where competition_id = $1 and user_id = $2
		order by opened_at desc
		limit $3
	`, competitionID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
