package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestService(expiry time.Duration) *Service {
	return NewService(&Config{
		JWTSecret:   []byte("test-secret-key-for-auth-service-tests"),
		TokenExpiry: expiry,
	}, nil)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(time.Hour)

	token, err := svc.GenerateToken("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Wallet != "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin" {
		t.Errorf("wallet = %q", claims.Wallet)
	}
	if time.Until(claims.ExpiresAt) < 59*time.Minute {
		t.Errorf("expiry too soon: %v", claims.ExpiresAt)
	}
}

func TestGenerateTokenRequiresWallet(t *testing.T) {
	svc := newTestService(time.Hour)
	if _, err := svc.GenerateToken(""); !errors.Is(err, ErrMissingClaims) {
		t.Errorf("want ErrMissingClaims, got %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(time.Hour)
	if _, err := svc.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.ValidateToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token: want ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	token, err := newTestService(time.Hour).GenerateToken("wallet-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewService(&Config{JWTSecret: []byte("a-completely-different-signing-key")}, nil)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another key validated")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService(-time.Minute)
	token, err := svc.GenerateToken("wallet-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("want ErrExpiredToken, got %v", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractBearerToken(tt.header); got != tt.want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
