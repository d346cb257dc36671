package competition

import (
	"context"
	"sync"
	"time"

	"fxarena/internal/model"
)

// MemoryStore implements Store with in-memory maps for tests and
// development.
type MemoryStore struct {
	mu           sync.Mutex
	competitions map[string]model.Competition
	entries      map[string]model.Entry
	challenges   map[string]model.Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		competitions: make(map[string]model.Competition),
		entries:      make(map[string]model.Entry),
		challenges:   make(map[string]model.Challenge),
	}
}

func entryKey(competitionID, userID string) string {
	return competitionID + "|" + userID
}

func (s *MemoryStore) CreateCompetition(_ context.Context, c model.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCompetition(_ context.Context, id string) (model.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[id]
	if !ok {
		return model.Competition{}, ErrCompetitionNotFound
	}
	return c, nil
}

func (s *MemoryStore) CreateEntry(_ context.Context, e model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey(e.CompetitionID, e.UserID)
	if _, ok := s.entries[key]; ok {
		return ErrEntryExists
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) GetEntry(_ context.Context, competitionID, userID string) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey(competitionID, userID)]
	if !ok {
		return model.Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (s *MemoryStore) ListEntries(_ context.Context, competitionID string) ([]model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Entry
	for _, e := range s.entries {
		if e.CompetitionID == competitionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateEntry(_ context.Context, e model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey(e.CompetitionID, e.UserID)
	if _, ok := s.entries[key]; !ok {
		return ErrEntryNotFound
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) CreateChallenge(_ context.Context, c model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = c
	return nil
}

func (s *MemoryStore) GetChallenge(_ context.Context, id string) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return model.Challenge{}, ErrChallengeNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateChallenge(_ context.Context, id string, fn func(c *model.Challenge) error) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return model.Challenge{}, ErrChallengeNotFound
	}
	if err := fn(&c); err != nil {
		return model.Challenge{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	s.challenges[id] = c
	return c, nil
}
