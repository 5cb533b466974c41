package store

import (
	"context"
	"encoding/json"
	"sync"

	"assent/internal/ledger/models"
)

// InMemoryStore keeps ledger state in memory. Used for tests and as the
// fallback repository when no durable backend is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewInMemory constructs an empty in-memory repository.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{states: make(map[string][]byte)}
}

func (s *InMemoryStore) Load(_ context.Context, userID string) (*models.State, error) {
	s.mu.RLock()
	raw, ok := s.states[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var state models.State
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt payload: clear it and report "no prior state".
		s.mu.Lock()
		delete(s.states, userID)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	state.Normalize()
	return &state, nil
}

func (s *InMemoryStore) Save(_ context.Context, userID string, state *models.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = raw
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// Corrupt overwrites a user's stored payload with unparseable bytes. Test
// hook for the corrupt-data recovery path.
func (s *InMemoryStore) Corrupt(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = []byte("{not json")
}
