package tenant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrTenantNotFound = errors.New("tenant: not found")

// Repository is the read contract against provisioning-owned tenant storage.
//
// The routing core never writes tenant configuration; TouchActivity is the
// single narrow exception (a best-effort lastActivity stamp).
type Repository interface {
	// TenantByNumber resolves a destination number to a full tenant snapshot.
	// Returns (Tenant{}, false, nil) when the number is unknown.
	TenantByNumber(ctx context.Context, number string) (Tenant, bool, error)

	TouchActivity(ctx context.Context, tenantID string, at time.Time) error
}

// Directory resolves inbound destination numbers to tenant snapshots.
//
// Snapshots are cached for a short TTL so the call legs of one session do not
// reload configuration. The provisioning service signals configuration changes
// through Invalidate.
//
// Lifecycle: construct once at startup, share across all call handlers.
type Directory struct {
	repo  Repository
	ttl   time.Duration
	log   *slog.Logger
	clock func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry // keyed by destination number
}

type cacheEntry struct {
	tenant    Tenant
	expiresAt time.Time
}

func NewDirectory(repo Repository, ttl time.Duration, log *slog.Logger) *Directory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		repo:  repo,
		ttl:   ttl,
		log:   log,
		clock: time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// ResolveTenant maps an inbound destination number to an active tenant.
//
// A missing number and a non-active tenant both return ErrTenantNotFound:
// callers must play a generic greeting, never surface a platform error.
func (d *Directory) ResolveTenant(ctx context.Context, destinationNumber string) (Tenant, error) {
	if destinationNumber == "" {
		return Tenant{}, ErrTenantNotFound
	}

	now := d.clock()

	d.mu.RLock()
	if e, ok := d.cache[destinationNumber]; ok && now.Before(e.expiresAt) {
		d.mu.RUnlock()
		return d.checkStatus(e.tenant)
	}
	d.mu.RUnlock()

	t, ok, err := d.repo.TenantByNumber(ctx, destinationNumber)
	if err != nil {
		return Tenant{}, err
	}
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}

	// Config warnings surface once per snapshot load, not per call.
	for _, w := range ValidateConfig(&t) {
		d.log.Warn("routing rule disabled", "warning", w.String())
	}

	d.mu.Lock()
	d.cache[destinationNumber] = cacheEntry{tenant: t, expiresAt: now.Add(d.ttl)}
	d.mu.Unlock()

	return d.checkStatus(t)
}

func (d *Directory) checkStatus(t Tenant) (Tenant, error) {
	if t.Status != StatusActive {
		d.log.Info("tenant not active", "tenant_id", t.ID, "status", string(t.Status))
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

// Invalidate drops every cached snapshot of the given tenant. It is the hook
// for the provisioning collaborator's configuration-changed signal.
func (d *Directory) Invalidate(tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for num, e := range d.cache {
		if e.tenant.ID == tenantID {
			delete(d.cache, num)
		}
	}
}

// TouchActivity stamps the tenant's lastActivity. Best-effort: failures are
// logged and swallowed, routing never depends on it.
func (d *Directory) TouchActivity(ctx context.Context, tenantID string) {
	if err := d.repo.TouchActivity(ctx, tenantID, d.clock().UTC()); err != nil {
		d.log.Debug("touch activity failed", "tenant_id", tenantID, "err", err)
	}
}
