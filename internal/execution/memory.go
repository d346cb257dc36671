package execution

import (
	"context"
	"errors"
	"sync"

	"fxarena/internal/model"
)

var errTradeNotFound = errors.New("execution: trade not found")

// MemoryStore implements Store with in-memory maps for tests and
// development. Atomic holds one mutex for the callback, which is a
// coarser serialization than the per-entry row lock in Postgres but
// preserves the same guarantees.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[string]model.Position
	trades    map[string]model.Trade
	deals     []model.Deal
	entries   map[string]model.Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]model.Position),
		trades:    make(map[string]model.Trade),
		entries:   make(map[string]model.Entry),
	}
}

func entryKey(competitionID, userID string) string {
	return competitionID + "|" + userID
}

// SeedEntry installs a competition entry directly. Test/dev helper.
func (s *MemoryStore) SeedEntry(e model.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(e.CompetitionID, e.UserID)] = e
}

// EntrySnapshot returns the stored entry. Test/dev helper.
func (s *MemoryStore) EntrySnapshot(competitionID, userID string) (model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey(competitionID, userID)]
	return e, ok
}

func (s *MemoryStore) Atomic(_ context.Context, competitionID, userID string, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryKey(competitionID, userID)]; !ok {
		return ErrEntryNotFound
	}
	tx := &memTx{
		s:             s,
		competitionID: competitionID,
		userID:        userID,
		positions:     make(map[string]*model.Position),
		trades:        make(map[string]model.Trade),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes and applies them only when the callback succeeds,
// mirroring transaction rollback semantics.
type memTx struct {
	s             *MemoryStore
	competitionID string
	userID        string
	positions     map[string]*model.Position // nil value marks deletion
	trades        map[string]model.Trade
	deals         []model.Deal
	entry         *model.Entry
}

func (tx *memTx) PositionByPair(pair string) (*model.Position, error) {
	for _, p := range tx.positions {
		if p != nil && p.Pair == pair {
			cp := *p
			return &cp, nil
		}
	}
	for id, p := range tx.s.positions {
		if _, staged := tx.positions[id]; staged {
			continue
		}
		if p.CompetitionID == tx.competitionID && p.UserID == tx.userID && p.Pair == pair {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) PositionByID(id string) (*model.Position, error) {
	if p, staged := tx.positions[id]; staged {
		if p == nil {
			return nil, nil
		}
		cp := *p
		return &cp, nil
	}
	if p, ok := tx.s.positions[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (tx *memTx) CreatePosition(p model.Position) error {
	tx.positions[p.ID] = &p
	return nil
}

func (tx *memTx) UpdatePosition(p model.Position) error {
	tx.positions[p.ID] = &p
	return nil
}

func (tx *memTx) DeletePosition(id string) error {
	tx.positions[id] = nil
	return nil
}

func (tx *memTx) Trade(id string) (model.Trade, error) {
	if t, ok := tx.trades[id]; ok {
		return t, nil
	}
	if t, ok := tx.s.trades[id]; ok {
		return t, nil
	}
	return model.Trade{}, errTradeNotFound
}

func (tx *memTx) CreateTrade(t model.Trade) error {
	tx.trades[t.ID] = t
	return nil
}

func (tx *memTx) UpdateTrade(t model.Trade) error {
	tx.trades[t.ID] = t
	return nil
}

func (tx *memTx) AppendDeal(d model.Deal) error {
	tx.deals = append(tx.deals, d)
	return nil
}

func (tx *memTx) Entry() (model.Entry, error) {
	if tx.entry != nil {
		return *tx.entry, nil
	}
	e, ok := tx.s.entries[entryKey(tx.competitionID, tx.userID)]
	if !ok {
		return model.Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (tx *memTx) UpdateEntry(e model.Entry) error {
	tx.entry = &e
	return nil
}

func (tx *memTx) commit() {
	for id, p := range tx.positions {
		if p == nil {
			delete(tx.s.positions, id)
		} else {
			tx.s.positions[id] = *p
		}
	}
	for id, t := range tx.trades {
		tx.s.trades[id] = t
	}
	tx.s.deals = append(tx.s.deals, tx.deals...)
	if tx.entry != nil {
		tx.s.entries[entryKey(tx.competitionID, tx.userID)] = *tx.entry
	}
}

func (s *MemoryStore) GetPosition(_ context.Context, competitionID, userID, positionID string) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionID]
	if !ok || p.CompetitionID != competitionID || p.UserID != userID {
		return model.Position{}, ErrPositionNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListOpenPositions(_ context.Context, competitionID, userID string) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.CompetitionID == competitionID && p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAllOpenPositions(_ context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) ListDeals(_ context.Context, competitionID, userID string, limit int) ([]model.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Deal
	for i := len(s.deals) - 1; i >= 0; i-- {
		d := s.deals[i]
		if d.CompetitionID != competitionID || d.UserID != userID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, competitionID, userID string, limit int) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Trade
	for _, t := range s.trades {
		if t.CompetitionID == competitionID && t.UserID == userID {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
