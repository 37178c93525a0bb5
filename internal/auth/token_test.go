package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidateAccessToken(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, expiresAt, err := svc.IssueAccessToken("alice@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := svc.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type: %s", claims.TokenType)
	}
	if claims.ID == "" {
		t.Fatal("expected jti claim")
	}
}

func TestRefreshTokenCarriesRefreshType(t *testing.T) {
	svc, err := NewTokenService("test-secret", WithRefreshTokenTTL(7*24*time.Hour))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, expiresAt, err := svc.IssueRefreshToken("alice@example.com")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if until := time.Until(expiresAt); until < 6*24*time.Hour {
		t.Fatalf("expected ~7d lifetime, got %v", until)
	}

	claims, err := svc.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Fatalf("unexpected token type: %s", claims.TokenType)
	}
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.ParseAndValidate(token); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("token %q: expected ErrTokenMalformed, got %v", token, err)
		}
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenService("secret-one")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	verifier, err := NewTokenService("secret-two")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _, err := issuer.IssueAccessToken("alice@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := verifier.ParseAndValidate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed on bad signature, got %v", err)
	}
}

func TestValidateDistinguishesExpiry(t *testing.T) {
	current := time.Now().UTC()
	svc, err := NewTokenService("test-secret",
		WithAccessTokenTTL(time.Minute),
		WithTokenClock(func() time.Time { return current }),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _, err := svc.IssueAccessToken("alice@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := svc.ParseAndValidate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("   "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
