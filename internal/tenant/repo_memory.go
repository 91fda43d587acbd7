package tenant

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory tenant repository useful for tests and local runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.RWMutex
	tenants map[string]Tenant // by tenant ID
	numbers map[string]string // destination number -> tenant ID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tenants: make(map[string]Tenant),
		numbers: make(map[string]string),
	}
}

// Put registers a tenant and indexes its numbers.
func (r *MemoryRepo) Put(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	for _, n := range t.Numbers {
		r.numbers[n] = t.ID
	}
}

func (r *MemoryRepo) TenantByNumber(ctx context.Context, number string) (Tenant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.numbers[number]
	if !ok {
		return Tenant{}, false, nil
	}
	t, ok := r.tenants[id]
	return t, ok, nil
}

func (r *MemoryRepo) TouchActivity(ctx context.Context, tenantID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[tenantID]; ok {
		t.LastActivity = at
		r.tenants[tenantID] = t
	}
	return nil
}
