package auth

import (
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewSessionClaims(time.Hour, time.Now())
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sid != claims.Sid || parsed.Exp != claims.Exp {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := NewSessionClaims(time.Hour, time.Now().Add(-2*time.Hour))
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMalformedTokenRejected(t *testing.T) {
	for _, tok := range []string{"", "a.b", "a.b.c.d", "not-a-token"} {
		if _, err := ParseAndVerifyHS256(tok, "s"); err == nil {
			t.Fatalf("expected error for %q", tok)
		}
	}
}

func TestNewSessionClaimsUnique(t *testing.T) {
	a := NewSessionClaims(time.Hour, time.Now())
	b := NewSessionClaims(time.Hour, time.Now())
	if a.Sid == b.Sid {
		t.Fatal("session ids should be unique")
	}
}
