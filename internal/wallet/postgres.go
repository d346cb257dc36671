package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

// PostgresStore implements Store on pgx. Every Update runs as one short
// transaction holding a row lock on the wallet, so concurrent bets and
// entries on the same wallet serialize instead of losing updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string) (model.Wallet, error) {
	var w model.Wallet
	err := s.pool.QueryRow(ctx, `
		insert into wallets (user_id, balance_tokens, locked_tokens, created_at, updated_at)
		values ($1, 0, 0, now(), now())
		on conflict (user_id) do update set user_id = excluded.user_id
		returning user_id, balance_tokens, locked_tokens, created_at, updated_at
	`, userID).Scan(&w.UserID, &w.BalanceTokens, &w.LockedTokens, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(w *model.Wallet) (*model.TokenTransaction, error)) (model.Wallet, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.Wallet{}, err
	}
	defer tx.Rollback(ctx)

	var w model.Wallet
	err = tx.QueryRow(ctx, `
		select user_id, balance_tokens, locked_tokens, created_at, updated_at
		from wallets where user_id = $1 for update
	`, userID).Scan(&w.UserID, &w.BalanceTokens, &w.LockedTokens, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		now := time.Now().UTC()
		w = model.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}
		if _, err := tx.Exec(ctx, `
			insert into wallets (user_id, balance_tokens, locked_tokens, created_at, updated_at)
			values ($1, 0, 0, $2, $2)
		`, userID, now); err != nil {
			return model.Wallet{}, err
		}
		// re-lock the freshly inserted row
		if err := tx.QueryRow(ctx, `
			select user_id, balance_tokens, locked_tokens, created_at, updated_at
			from wallets where user_id = $1 for update
		`, userID).Scan(&w.UserID, &w.BalanceTokens, &w.LockedTokens, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return model.Wallet{}, err
		}
	} else if err != nil {
		return model.Wallet{}, err
	}

	entry, err := fn(&w)
	if err != nil {
		return model.Wallet{}, err
	}
	w.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		update wallets set balance_tokens = $2, locked_tokens = $3, updated_at = $4
		where user_id = $1
	`, userID, w.BalanceTokens, w.LockedTokens, w.UpdatedAt); err != nil {
		return model.Wallet{}, err
	}
	if entry != nil {
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return model.Wallet{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Wallet{}, err
	}
	return w, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *model.TokenTransaction) error {
	var refType, refID *string
	if t.Ref != nil {
		rt := string(t.Ref.Type)
		refType, refID = &rt, &t.Ref.ID
	}
	var meta []byte
	if len(t.Metadata) > 0 {
		b, err := json.Marshal(t.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := tx.Exec(ctx, `
		insert into token_transactions (id, user_id, kind, amount_tokens, ref_type, ref_id, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, string(t.Kind), t.AmountTokens, refType, refID, meta, t.CreatedAt)
	return err
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.TokenTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select id, user_id, kind, amount_tokens, ref_type, ref_id, metadata, created_at
		from token_transactions
		where user_id = $1
		order by created_at desc, id desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TokenTransaction
	for rows.Next() {
		var t model.TokenTransaction
		var kind string
		var refType, refID *string
		var meta []byte
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.AmountTokens, &refType, &refID, &meta, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = types.TxKind(kind)
		if refType != nil && refID != nil {
			t.Ref = &types.Ref{Type: types.RefType(*refType), ID: *refID}
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasTransaction(ctx context.Context, userID string, kind types.TxKind, ref *types.Ref) (bool, error) {
	var refType, refID *string
	if ref != nil {
		rt := string(ref.Type)
		refType, refID = &rt, &ref.ID
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		select exists (
			select 1 from token_transactions
			where user_id = $1 and kind = $2
			  and ref_type is not distinct from $3
			  and ref_id is not distinct from $4
		)
	`, userID, string(kind), refType, refID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) SumTransactions(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `
		select coalesce(sum(amount_tokens), 0) from token_transactions where user_id = $1
	`, userID).Scan(&sum)
	return sum, err
}
