package wallet

import (
	"context"
	"errors"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

var (
	// ErrInsufficientBalance means the balance would drop below zero.
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	// ErrBelowLocked means the balance would drop below the locked amount.
	ErrBelowLocked = errors.New("wallet: balance would fall below locked tokens")
	// ErrInsufficientLocked means an unlock exceeds the locked sub-balance.
	ErrInsufficientLocked = errors.New("wallet: insufficient locked tokens")
	// ErrInvalidAmount rejects non-positive amounts where a positive one is required.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")
	// ErrReconciliation means the transaction sum does not match the balance.
	ErrReconciliation = errors.New("wallet: ledger does not reconcile with balance")
)

// Store persists wallets and their append-only transaction log.
//
// Update is the single write path: it must run fn against the current
// wallet under an exclusive per-user lock (row lock in Postgres, mutex in
// memory) and persist the modified wallet together with the returned
// transaction row in one atomic step. fn returning an error aborts with no
// partial write.
type Store interface {
	GetOrCreate(ctx context.Context, userID string) (model.Wallet, error)
	Update(ctx context.Context, userID string, fn func(w *model.Wallet) (*model.TokenTransaction, error)) (model.Wallet, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.TokenTransaction, error)
	SumTransactions(ctx context.Context, userID string) (int64, error)
	// HasTransaction reports whether a ledger row already exists for the
	// (user, kind, ref) triple. Settlement retries check it before
	// repeating a movement.
	HasTransaction(ctx context.Context, userID string, kind types.TxKind, ref *types.Ref) (bool, error)
}
