package customer

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Context // tenantID + "|" + callerID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Context)}
}

func key(tenantID, callerID string) string { return tenantID + "|" + callerID }

func (s *MemoryStore) Get(ctx context.Context, tenantID, callerID string) (Context, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.profiles[key(tenantID, callerID)]
	return c, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, c Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[key(c.TenantID, c.CallerID)] = c
	return nil
}

func (s *MemoryStore) Anonymize(ctx context.Context, tenantID, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, key(tenantID, callerID))
	return nil
}
