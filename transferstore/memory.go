package transferstore

import (
	"context"
	"sync"
	"time"

	"tripbased.dev/core/transfers"
)

// MemoryStore is a pure in-memory Store, sufficient for tests and for a
// single-process deployment that rebuilds transfers on every restart.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[string]*transfers.Map
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]*transfers.Map)}
}

func (s *MemoryStore) Get(_ context.Context, day time.Time) (*transfers.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.days[dayKey(day)]; ok {
		return m, nil
	}
	return transfers.NewMap(), nil
}

func (s *MemoryStore) Put(_ context.Context, day time.Time, m *transfers.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[dayKey(day)] = m
	return nil
}
