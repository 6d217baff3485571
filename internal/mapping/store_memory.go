package mapping

import (
	"context"
	"sync"
)

// InMemoryStore enforces the same sourceID uniqueness contract as the
// Postgres store. Used in tests and local runs without a database.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Mapping
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]Mapping)}
}

func (s *InMemoryStore) Get(ctx context.Context, sourceID string) (Mapping, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[sourceID]
	if !ok {
		return Mapping{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemoryStore) Create(ctx context.Context, m Mapping) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[m.SourceID]; ok {
		return &ConflictError{Existing: existing, Attempted: m}
	}
	s.byID[m.SourceID] = m
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sourceID string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byID, sourceID)
	return nil
}
