package handlers

import (
	"testing"
	"time"

	"github.com/salud-online/sos/services/auth-service/internal/storage"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestIssueJWTClaims(t *testing.T) {
	h := &AuthHandler{
		signer: NewHS512Signer("test-secret"),
		cfg: Config{
			AccessTTL: 3 * time.Hour,
			Audience:  "saludonlinesolidaria.com",
			Issuer:    "saludonlinesolidaria.com",
		},
	}
	user := storage.User{
		ID:    "user-1",
		Email: "paciente@example.com",
		Role:  RolePatient,
	}

	token, err := h.issueJWT(user)
	if err != nil {
		t.Fatalf("issueJWT failed: %v", err)
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Sub != "user-1" || claims.Email != "paciente@example.com" || claims.Role != RolePatient {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Aud != "saludonlinesolidaria.com" || claims.Iss != "saludonlinesolidaria.com" {
		t.Fatalf("aud/iss not carried: %+v", claims)
	}
	if got := claims.Exp - claims.Iat; got != int64((3 * time.Hour).Seconds()) {
		t.Fatalf("expected 3h expiry window, got %d seconds", got)
	}
}

func TestNewRefreshTokenIsRandomHex(t *testing.T) {
	a, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken failed: %v", err)
	}
	b, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken failed: %v", err)
	}
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected 64 hex chars, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("refresh tokens must not repeat")
	}
}
