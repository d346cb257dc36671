package betting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketCols = `id, challenge_id, status, rake_bps, winner_user_id, created_at, settled_at`

func scanMarket(row pgx.Row) (model.BetMarket, error) {
	var m model.BetMarket
	var status string
	var winner *string
	err := row.Scan(&m.ID, &m.ChallengeID, &status, &m.RakeBps, &winner, &m.CreatedAt, &m.SettledAt)
	if err != nil {
		return m, err
	}
	m.Status = types.MarketStatus(status)
	if winner != nil {
		m.WinnerUserID = *winner
	}
	return m, nil
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m model.BetMarket) error {
	ct, err := s.pool.Exec(ctx, `
		insert into bet_markets (id, challenge_id, status, rake_bps, winner_user_id, created_at, settled_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (challenge_id) do nothing
	`, m.ID, m.ChallengeID, string(m.Status), m.RakeBps, nullEmpty(m.WinnerUserID), m.CreatedAt, m.SettledAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrMarketExists
	}
	return nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (model.BetMarket, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `select `+marketCols+` from bet_markets where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BetMarket{}, ErrMarketNotFound
	}
	return m, err
}

func (s *PostgresStore) GetMarketByChallenge(ctx context.Context, challengeID string) (model.BetMarket, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `select `+marketCols+` from bet_markets where challenge_id = $1`, challengeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BetMarket{}, ErrMarketNotFound
	}
	return m, err
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, id string, fn func(m *model.BetMarket) error) (model.BetMarket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.BetMarket{}, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMarket(tx.QueryRow(ctx, `select `+marketCols+` from bet_markets where id = $1 for update`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BetMarket{}, ErrMarketNotFound
	}
	if err != nil {
		return model.BetMarket{}, err
	}
	if err := fn(&m); err != nil {
		return model.BetMarket{}, err
	}
	if _, err := tx.Exec(ctx, `
		update bet_markets
		set status = $2, rake_bps = $3, winner_user_id = $4, settled_at = $5
		where id = $1
	`, m.ID, string(m.Status), m.RakeBps, nullEmpty(m.WinnerUserID), m.SettledAt); err != nil {
		return model.BetMarket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.BetMarket{}, err
	}
	return m, nil
}

func (s *PostgresStore) CreateBet(ctx context.Context, b model.Bet) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `select status from bet_markets where id = $1 for update`, b.MarketID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMarketNotFound
	}
	if err != nil {
		return err
	}
	if types.MarketStatus(status) != types.MarketStatusOpen {
		return ErrMarketNotOpen
	}
	if _, err := tx.Exec(ctx, `
		insert into bets (id, market_id, user_id, pick_user_id, amount_tokens, payout_tokens, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, b.ID, b.MarketID, b.UserID, b.PickUserID, b.AmountTokens, b.PayoutTokens, string(b.Status), b.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const betCols = `id, market_id, user_id, pick_user_id, amount_tokens, payout_tokens, status, created_at`

func scanBet(row pgx.Row) (model.Bet, error) {
	var b model.Bet
	var status string
	err := row.Scan(&b.ID, &b.MarketID, &b.UserID, &b.PickUserID, &b.AmountTokens, &b.PayoutTokens, &status, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	b.Status = types.BetStatus(status)
	return b, nil
}

func (s *PostgresStore) GetBet(ctx context.Context, id string) (model.Bet, error) {
	b, err := scanBet(s.pool.QueryRow(ctx, `select `+betCols+` from bets where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bet{}, ErrBetNotFound
	}
	return b, err
}

func (s *PostgresStore) listBets(ctx context.Context, query, arg string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListBets(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.listBets(ctx, `select `+betCols+` from bets where market_id = $1 order by created_at`, marketID)
}

func (s *PostgresStore) ListUserBets(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.listBets(ctx, `select `+betCols+` from bets where user_id = $1 order by created_at`, userID)
}

func (s *PostgresStore) UpdateBet(ctx context.Context, b model.Bet) error {
	ct, err := s.pool.Exec(ctx, `
		update bets set payout_tokens = $2, status = $3 where id = $1
	`, b.ID, b.PayoutTokens, string(b.Status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrBetNotFound
	}
	return nil
}

func nullEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
