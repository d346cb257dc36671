// Package wallet owns each user's token balance and locked sub-balance.
// All mutations flow through the four transactional primitives here; the
// wallet row is never written directly by other packages.
package wallet

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fxarena/internal/metrics"
	"fxarena/internal/model"
	"fxarena/internal/types"
)

// SystemUserID is the house account. Rake and pari-mutuel rounding
// remainders are credited here so total token supply stays auditable.
const SystemUserID = "house"

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, log: logger.Named("wallet")}
}

func (s *Service) GetOrCreateWallet(ctx context.Context, userID string) (model.Wallet, error) {
	return s.store.GetOrCreate(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]model.TokenTransaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

// ApplyTransaction adjusts the balance by a signed amount and appends the
// ledger row in the same atomic step. Zero amounts are allowed for
// bookkeeping entries.
func (s *Service) ApplyTransaction(ctx context.Context, userID string, kind types.TxKind, amount int64, ref *types.Ref, metadata map[string]string) (model.Wallet, error) {
	w, err := s.store.Update(ctx, userID, func(w *model.Wallet) (*model.TokenTransaction, error) {
		next := w.BalanceTokens + amount
		if next < 0 {
			return nil, fmt.Errorf("%w: required %d, available %d", ErrInsufficientBalance, -amount, w.BalanceTokens)
		}
		if next < w.LockedTokens {
			return nil, fmt.Errorf("%w: balance %d, locked %d", ErrBelowLocked, next, w.LockedTokens)
		}
		w.BalanceTokens = next
		return newTransaction(userID, kind, amount, ref, metadata), nil
	})
	if err != nil {
		return model.Wallet{}, err
	}
	s.log.Debug("transaction applied",
		zap.String("user", userID), zap.String("kind", string(kind)), zap.Int64("amount", amount))
	return w, nil
}

// LockTokens reserves part of the available balance. The ledger row
// carries amount 0 so locks never double-count against the balance sum.
func (s *Service) LockTokens(ctx context.Context, userID string, amount int64, kind types.TxKind, ref *types.Ref) (model.Wallet, error) {
	if amount <= 0 {
		return model.Wallet{}, ErrInvalidAmount
	}
	return s.store.Update(ctx, userID, func(w *model.Wallet) (*model.TokenTransaction, error) {
		if amount > w.Available() {
			return nil, fmt.Errorf("%w: required %d, available %d", ErrInsufficientBalance, amount, w.Available())
		}
		w.LockedTokens += amount
		return newTransaction(userID, kind, 0, ref, map[string]string{
			"lock": strconv.FormatInt(amount, 10),
		}), nil
	})
}

// UnlockTokens releases a reservation without moving the balance.
func (s *Service) UnlockTokens(ctx context.Context, userID string, amount int64, kind types.TxKind, ref *types.Ref) (model.Wallet, error) {
	if amount <= 0 {
		return model.Wallet{}, ErrInvalidAmount
	}
	return s.store.Update(ctx, userID, func(w *model.Wallet) (*model.TokenTransaction, error) {
		if amount > w.LockedTokens {
			return nil, fmt.Errorf("%w: requested %d, locked %d", ErrInsufficientLocked, amount, w.LockedTokens)
		}
		w.LockedTokens -= amount
		return newTransaction(userID, kind, 0, ref, map[string]string{
			"unlock": strconv.FormatInt(amount, 10),
		}), nil
	})
}

// UnlockAndDeductTokens forfeits a locked stake: both the lock and the
// balance drop by amount in one atomic step.
func (s *Service) UnlockAndDeductTokens(ctx context.Context, userID string, amount int64, kind types.TxKind, ref *types.Ref) (model.Wallet, error) {
	if amount <= 0 {
		return model.Wallet{}, ErrInvalidAmount
	}
	w, err := s.store.Update(ctx, userID, func(w *model.Wallet) (*model.TokenTransaction, error) {
		if amount > w.LockedTokens {
			return nil, fmt.Errorf("%w: requested %d, locked %d", ErrInsufficientLocked, amount, w.LockedTokens)
		}
		w.LockedTokens -= amount
		w.BalanceTokens -= amount
		return newTransaction(userID, kind, -amount, ref, nil), nil
	})
	if err != nil {
		return model.Wallet{}, err
	}
	s.log.Debug("stake forfeited", zap.String("user", userID), zap.Int64("amount", amount))
	return w, nil
}

// HasTransaction reports whether the user's ledger already records a
// transaction with this kind and reference. Settlement flows consult it
// when resuming after a partial failure so no movement runs twice.
func (s *Service) HasTransaction(ctx context.Context, userID string, kind types.TxKind, ref *types.Ref) (bool, error) {
	return s.store.HasTransaction(ctx, userID, kind, ref)
}

// Reconcile checks the double-entry invariant: the sum of all transaction
// amounts for the user must equal the current balance.
func (s *Service) Reconcile(ctx context.Context, userID string) error {
	w, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := s.store.SumTransactions(ctx, userID)
	if err != nil {
		return err
	}
	if sum != w.BalanceTokens {
		return fmt.Errorf("%w: tx sum %d, balance %d", ErrReconciliation, sum, w.BalanceTokens)
	}
	return nil
}

func newTransaction(userID string, kind types.TxKind, amount int64, ref *types.Ref, metadata map[string]string) *model.TokenTransaction {
	metrics.TokenTransactions.WithLabelValues(string(kind)).Inc()
	return &model.TokenTransaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Kind:         kind,
		AmountTokens: amount,
		Ref:          ref,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
}
