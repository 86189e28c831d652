package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	v := NewVerifier("super-secret")
	tok := signToken(t, "super-secret", jwt.MapClaims{
		"sub": "listener-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("expected valid token to verify, got %v", err)
	}
	if p.Subject != "listener-1" {
		t.Fatalf("expected subject listener-1, got %q", p.Subject)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("super-secret")
	tok := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "listener-1"})
	if _, err := v.Verify(tok); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("super-secret")
	tok := signToken(t, "super-secret", jwt.MapClaims{
		"sub": "listener-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(tok); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewVerifier("super-secret")
	if _, err := v.Verify(""); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("super-secret")
	tok := signToken(t, "super-secret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, err := v.Verify(tok); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for missing subject, got %v", err)
	}
}
