package wallet

import (
	"context"
	"sync"
	"time"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

// MemoryStore implements Store with in-memory maps. Used for tests and
// development; the mutex gives the same per-user serialization the
// Postgres row lock provides.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]model.Wallet
	txs     []model.TokenTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]model.Wallet)}
}

func (s *MemoryStore) getOrCreateLocked(userID string) model.Wallet {
	w, ok := s.wallets[userID]
	if !ok {
		now := time.Now().UTC()
		w = model.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.wallets[userID] = w
	}
	return w
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID string) (model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID), nil
}

func (s *MemoryStore) Update(_ context.Context, userID string, fn func(w *model.Wallet) (*model.TokenTransaction, error)) (model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.getOrCreateLocked(userID)
	if tx, err := fn(&w); err != nil {
		return model.Wallet{}, err
	} else if tx != nil {
		s.txs = append(s.txs, *tx)
	}
	w.UpdatedAt = time.Now().UTC()
	s.wallets[userID] = w
	return w, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]model.TokenTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TokenTransaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].UserID != userID {
			continue
		}
		out = append(out, s.txs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) HasTransaction(_ context.Context, userID string, kind types.TxKind, ref *types.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.UserID != userID || tx.Kind != kind {
			continue
		}
		if ref == nil {
			if tx.Ref == nil {
				return true, nil
			}
			continue
		}
		if tx.Ref != nil && tx.Ref.Type == ref.Type && tx.Ref.ID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SumTransactions(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, tx := range s.txs {
		if tx.UserID == userID {
			sum += tx.AmountTokens
		}
	}
	return sum, nil
}
