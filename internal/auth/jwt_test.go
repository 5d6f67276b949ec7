package auth

import (
	"testing"
	"time"

	"github.com/erazemk/nakit/internal/model"
)

var testIdentity = model.Identity{UserID: 1, Username: "admin", Role: model.RoleAdmin}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testIdentity, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.Identity() != testIdentity {
		t.Errorf("expected identity %+v, got %+v", testIdentity, claims.Identity())
	}
	if claims.ID == "" {
		t.Error("expected token id")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testIdentity, 0)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	token, _ := GenerateToken("secret", testIdentity, time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)

	if _, err := ValidateToken("secret", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, testIdentity, time.Hour)
	claims, _ := ValidateToken(secret, token)

	diff := time.Until(claims.ExpiresAt.Time) - time.Hour
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
