package auth

import (
	"testing"
	"time"

	"telephony-orchestrator/internal/config"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(config.MgmtAuthConfig{JWTSecret: "secret", JWTIssuer: "orchestrator"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops@example.com", "telephony:admin", 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Scope != "telephony:admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, _ := NewManager(config.MgmtAuthConfig{JWTSecret: "secret"})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops", "", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewManager(config.MgmtAuthConfig{JWTSecret: "secret-a"})
	b, _ := NewManager(config.MgmtAuthConfig{JWTSecret: "secret-b"})

	now := time.Now()
	tok, err := a.Issue(now, "ops", "", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuing, _ := NewManager(config.MgmtAuthConfig{JWTSecret: "secret", JWTIssuer: "other"})
	verifying, _ := NewManager(config.MgmtAuthConfig{JWTSecret: "secret", JWTIssuer: "orchestrator"})

	now := time.Now()
	tok, err := issuing.Issue(now, "ops", "", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifying.Verify(tok, now); err == nil {
		t.Fatalf("expected issuer rejection")
	}
}
