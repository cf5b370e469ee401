package service

import (
	"errors"
	"testing"
	"time"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)
	token, err := auth.GenerateToken("desktop", "ledger")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	claims, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.Subject != "desktop" || claims.Scope != "ledger" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil {
		t.Fatalf("expected expiry to be set")
	}

	other := NewAuthService("other", time.Hour)
	if _, err := other.ParseToken(token); !errors.Is(err, ErrAPITokenInvalid) {
		t.Fatalf("expected invalid token with wrong secret, got %v", err)
	}
}

func TestAuthServiceRequiresSecretAndSubject(t *testing.T) {
	if _, err := NewAuthService(" ", 0).GenerateToken("desktop", ""); !errors.Is(err, ErrAPISecretMissing) {
		t.Fatalf("expected missing secret, got %v", err)
	}
	auth := NewAuthService("secret", 0)
	token, err := auth.GenerateToken("", "")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := auth.ParseToken(token); !errors.Is(err, ErrAPITokenInvalid) {
		t.Fatalf("expected blank subject to be rejected, got %v", err)
	}
}
