package customer

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Get(ctx context.Context, tenantID, callerID string) (Context, bool, error) {
	return Context{}, false, errors.New("connection refused")
}
func (failingStore) Put(ctx context.Context, c Context) error {
	return errors.New("connection refused")
}
func (failingStore) Anonymize(ctx context.Context, tenantID, callerID string) error {
	return errors.New("connection refused")
}

func TestGetOrCreate_KnownCaller(t *testing.T) {
	store := NewMemoryStore()
	existing := Context{
		TenantID: "t1",
		CallerID: "+15551112222",
		Tier:     TierEnterprise,
		Language: "en-US",
		Timezone: "America/New_York",
		History:  []Interaction{},
	}
	if err := store.Put(context.Background(), existing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := NewResolver(store, nil)
	got := r.GetOrCreate(context.Background(), "t1", "+15551112222", TenantDefaults{})
	if got.Tier != TierEnterprise {
		t.Fatalf("expected stored profile, got %+v", got)
	}
	if got.Degraded {
		t.Fatal("stored profile must not be degraded")
	}
	if !got.IsVIP() {
		t.Fatal("enterprise caller should be VIP")
	}
}

func TestGetOrCreate_FirstContactPersistsDefaults(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)

	got := r.GetOrCreate(context.Background(), "t1", "+34911222333", TenantDefaults{})
	if got.Tier != TierBasic {
		t.Fatalf("expected basic tier, got %q", got.Tier)
	}
	if got.Language != "es-ES" || got.Timezone != "Europe/Madrid" {
		t.Fatalf("expected locale inferred from +34 prefix, got %q/%q", got.Language, got.Timezone)
	}
	if got.Degraded {
		t.Fatal("fresh profile with a healthy store must not be degraded")
	}

	// Second call must return the persisted profile.
	_, ok, err := store.Get(context.Background(), "t1", "+34911222333")
	if err != nil || !ok {
		t.Fatalf("expected persisted profile, ok=%v err=%v", ok, err)
	}
}

func TestGetOrCreate_TenantDefaultsBeatPrefix(t *testing.T) {
	r := NewResolver(NewMemoryStore(), nil)
	got := r.GetOrCreate(context.Background(), "t1", "+15551112222", TenantDefaults{
		Language: "fr-FR",
		Timezone: "Europe/Paris",
	})
	if got.Language != "fr-FR" || got.Timezone != "Europe/Paris" {
		t.Fatalf("tenant defaults should win, got %q/%q", got.Language, got.Timezone)
	}
}

func TestGetOrCreate_DegradesWhenStoreDown(t *testing.T) {
	r := NewResolver(failingStore{}, nil)

	got := r.GetOrCreate(context.Background(), "t1", "+15551112222", TenantDefaults{Language: "en-US"})
	if !got.Degraded {
		t.Fatal("expected degraded profile when store is down")
	}
	if got.Tier != TierBasic || got.Language != "en-US" {
		t.Fatalf("expected default profile, got %+v", got)
	}
}

func TestAppendInteraction(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)
	now := time.Unix(1700000000, 0).UTC()
	r.clock = func() time.Time { return now }

	c := r.GetOrCreate(context.Background(), "t1", "+15551112222", TenantDefaults{})
	r.AppendInteraction(context.Background(), c, Interaction{
		CallID:     "call-1",
		Department: "billing",
		Outcome:    "connected",
	})

	got, ok, err := store.Get(context.Background(), "t1", "+15551112222")
	if err != nil || !ok {
		t.Fatalf("profile lookup failed: ok=%v err=%v", ok, err)
	}
	if len(got.History) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(got.History))
	}
	if got.History[0].At != now {
		t.Fatalf("expected interaction stamped with clock time, got %v", got.History[0].At)
	}
	if got.LastInteraction != now {
		t.Fatalf("expected last interaction updated, got %v", got.LastInteraction)
	}
}

func TestAppendInteraction_SkipsDegradedProfiles(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)

	r.AppendInteraction(context.Background(), Context{
		TenantID: "t1", CallerID: "+15551112222", Degraded: true,
	}, Interaction{CallID: "call-1"})

	if _, ok, _ := store.Get(context.Background(), "t1", "+15551112222"); ok {
		t.Fatal("degraded profiles must not be written back")
	}
}
