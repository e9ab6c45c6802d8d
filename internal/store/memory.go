package store

import (
	"context"
	"sort"
	"sync"

	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/simulator"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]model.LedgerState
	series map[string]*simulator.Series
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]model.LedgerState),
		series: make(map[string]*simulator.Series),
	}
}

func (s *MemoryStore) LoadState(_ context.Context, sessionID string) (*model.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external mutation.
	out := st.Clone()
	return &out, nil
}

func (s *MemoryStore) SaveState(_ context.Context, sessionID string, state model.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[sessionID] = state.Clone()
	return nil
}

// Series values are immutable, so they are shared rather than copied.
func (s *MemoryStore) LoadSeries(_ context.Context, sessionID string) (*simulator.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return series, nil
}

func (s *MemoryStore) SaveSeries(_ context.Context, sessionID string, series *simulator.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[sessionID] = series
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, sessionID)
	delete(s.series, sessionID)
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
