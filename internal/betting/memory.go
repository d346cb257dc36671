package betting

import (
	"context"
	"sync"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

type MemoryStore struct {
	mu          sync.Mutex
	markets     map[string]model.BetMarket
	byChallenge map[string]string
	bets        map[string]model.Bet
	betOrder    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:     make(map[string]model.BetMarket),
		byChallenge: make(map[string]string),
		bets:        make(map[string]model.Bet),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m model.BetMarket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byChallenge[m.ChallengeID]; ok {
		return ErrMarketExists
	}
	s.markets[m.ID] = m
	s.byChallenge[m.ChallengeID] = m.ID
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (model.BetMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return model.BetMarket{}, ErrMarketNotFound
	}
	return m, nil
}

func (s *MemoryStore) GetMarketByChallenge(_ context.Context, challengeID string) (model.BetMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byChallenge[challengeID]
	if !ok {
		return model.BetMarket{}, ErrMarketNotFound
	}
	return s.markets[id], nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, id string, fn func(m *model.BetMarket) error) (model.BetMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return model.BetMarket{}, ErrMarketNotFound
	}
	if err := fn(&m); err != nil {
		return model.BetMarket{}, err
	}
	s.markets[id] = m
	return m, nil
}

func (s *MemoryStore) CreateBet(_ context.Context, b model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[b.MarketID]
	if !ok {
		return ErrMarketNotFound
	}
	if m.Status != types.MarketStatusOpen {
		return ErrMarketNotOpen
	}
	s.bets[b.ID] = b
	s.betOrder = append(s.betOrder, b.ID)
	return nil
}

func (s *MemoryStore) GetBet(_ context.Context, id string) (model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return model.Bet{}, ErrBetNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBets(_ context.Context, marketID string) ([]model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bet
	for _, id := range s.betOrder {
		if b := s.bets[id]; b.MarketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUserBets(_ context.Context, userID string) ([]model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bet
	for _, id := range s.betOrder {
		if b := s.bets[id]; b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateBet(_ context.Context, b model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; !ok {
		return ErrBetNotFound
	}
	s.bets[b.ID] = b
	return nil
}
