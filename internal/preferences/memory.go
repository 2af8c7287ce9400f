package preferences

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used when no Redis is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	limits map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{limits: make(map[string]int)}
}

func (s *MemoryStore) GetSpotsLimit(_ context.Context, clientID string) (int, bool, error) {
	if err := checkClient(clientID); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.limits[clientID]
	return n, ok, nil
}

func (s *MemoryStore) SetSpotsLimit(_ context.Context, clientID string, limit int) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	s.mu.Lock()
	s.limits[clientID] = ClampSpotsLimit(limit, MaxSpotsLimit)
	s.mu.Unlock()
	return nil
}
