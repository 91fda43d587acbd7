package auth

import (
	"testing"
	"time"

	"callrouter-platform/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)

	now := time.Unix(1700000000, 0).UTC()
	token, err := m.Issue(now, "user-1", "t-1", "supervisor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token string")
	}

	claims, err := m.Verify(token, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "t-1" || claims.Role != "supervisor" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t)

	now := time.Unix(1700000000, 0).UTC()
	token, err := m.Issue(now, "user-1", "t-1", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Past the TTL plus the 30s leeway.
	if _, err := m.Verify(token, now.Add(16*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := testManager(t)
	other, _ := NewManager(config.AuthConfig{JWTSecret: "different", AccessTokenTTL: time.Minute})

	now := time.Now()
	token, err := other.Issue(now, "user-1", "t-1", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	m := testManager(t)
	rogue, _ := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "someone-else",
		AccessTokenTTL: time.Minute,
	})

	now := time.Now()
	token, err := rogue.Issue(now, "user-1", "t-1", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token, now); err == nil {
		t.Fatalf("expected issuer error")
	}
}

func TestVerifyRejectsMissingTenant(t *testing.T) {
	m := testManager(t)

	now := time.Now()
	token, err := m.Issue(now, "user-1", "", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token, now); err == nil {
		t.Fatalf("expected tenant_id error")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
