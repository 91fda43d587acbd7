package customer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ErrStoreUnavailable wraps context-store failures. Callers never see it as a
// routing failure; the resolver degrades to defaults and flags the context.
var ErrStoreUnavailable = errors.New("customer: context store unavailable")

// Store is the external customer-data collaborator. Persistence, encryption
// and PII isolation are its responsibility; this core only shapes the data.
type Store interface {
	Get(ctx context.Context, tenantID, callerID string) (Context, bool, error)
	Put(ctx context.Context, c Context) error
	Anonymize(ctx context.Context, tenantID, callerID string) error
}

// Resolver fetches or builds the caller profile for a tenant.
//
// Failure policy: routing never blocks on the context store. A store error
// yields an ephemeral default profile with Degraded set, so the decision
// record carries the degradation for later audit.
type Resolver struct {
	store Store
	log   *slog.Logger
	clock func() time.Time
}

// TenantDefaults carries the per-tenant fallbacks used when a caller is new
// or the store is down.
type TenantDefaults struct {
	Language string
	Timezone string
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log, clock: time.Now}
}

// GetOrCreate returns the caller's profile, creating a default one on first
// contact. The returned profile is safe to use even when the store failed.
func (r *Resolver) GetOrCreate(ctx context.Context, tenantID, callerID string, defaults TenantDefaults) Context {
	if r.store != nil {
		c, ok, err := r.store.Get(ctx, tenantID, callerID)
		if err == nil && ok {
			return c
		}
		if err == nil {
			// First contact: persist the default profile, best-effort.
			c = r.defaultContext(tenantID, callerID, defaults, false)
			if putErr := r.store.Put(ctx, c); putErr != nil {
				r.log.Debug("customer context create failed", "tenant_id", tenantID, "err", putErr)
			}
			return c
		}
		r.log.Warn("customer context store unavailable, using defaults",
			"tenant_id", tenantID, "err", errors.Join(ErrStoreUnavailable, err))
	}
	return r.defaultContext(tenantID, callerID, defaults, true)
}

// AppendInteraction records the routed call in the caller's history.
// Best-effort: a store failure is logged, never propagated.
func (r *Resolver) AppendInteraction(ctx context.Context, c Context, i Interaction) {
	if r.store == nil || c.Degraded {
		return
	}
	if i.At.IsZero() {
		i.At = r.clock().UTC()
	}
	c.History = append(c.History, i)
	c.LastInteraction = i.At
	if err := r.store.Put(ctx, c); err != nil {
		r.log.Debug("interaction append failed", "tenant_id", c.TenantID, "call_id", i.CallID, "err", err)
	}
}

func (r *Resolver) defaultContext(tenantID, callerID string, defaults TenantDefaults, degraded bool) Context {
	lang := defaults.Language
	tz := defaults.Timezone
	if inferred, ok := regionFromPrefix(callerID); ok {
		if lang == "" {
			lang = inferred.language
		}
		if tz == "" {
			tz = inferred.timezone
		}
	}
	if lang == "" {
		lang = "en-US"
	}
	if tz == "" {
		tz = "UTC"
	}
	return Context{
		TenantID:       tenantID,
		CallerID:       callerID,
		Tier:           TierBasic,
		Language:       lang,
		Timezone:       tz,
		History:        []Interaction{},
		FirstContactAt: r.clock().UTC(),
		Degraded:       degraded,
	}
}

type region struct {
	language string
	timezone string
}

// regionFromPrefix infers a coarse locale from the E.164 country prefix.
// Deliberately small: only prefixes the platform actually serves.
func regionFromPrefix(number string) (region, bool) {
	switch {
	case strings.HasPrefix(number, "+1"):
		return region{language: "en-US", timezone: "America/New_York"}, true
	case strings.HasPrefix(number, "+34"):
		return region{language: "es-ES", timezone: "Europe/Madrid"}, true
	case strings.HasPrefix(number, "+33"):
		return region{language: "fr-FR", timezone: "Europe/Paris"}, true
	case strings.HasPrefix(number, "+44"):
		return region{language: "en-GB", timezone: "Europe/London"}, true
	case strings.HasPrefix(number, "+52"):
		return region{language: "es-MX", timezone: "America/Mexico_City"}, true
	default:
		return region{}, false
	}
}
