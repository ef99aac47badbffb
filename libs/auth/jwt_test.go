package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestHS512RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:   "42",
		Email: "paciente@example.com",
		Role:  "patient",
		Aud:   "sos.local",
		Iss:   "sos.local",
		Iat:   time.Now().Unix(),
		Exp:   time.Now().Add(3 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS512(claims, secret)
	if err != nil {
		t.Fatalf("SignHS512 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS512(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS512 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Email != claims.Email || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS512(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestHS512RejectsExpired(t *testing.T) {
	claims := Claims{
		Sub:  "7",
		Role: "provider",
		Iat:  time.Now().Add(-2 * time.Hour).Unix(),
		Exp:  time.Now().Add(-1 * time.Hour).Unix(),
	}
	token, err := SignHS512(claims, "s")
	if err != nil {
		t.Fatalf("SignHS512 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS512(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestHS512RejectsNotYetValid(t *testing.T) {
	claims := Claims{
		Sub:  "7",
		Role: "provider",
		Nbf:  time.Now().Add(1 * time.Hour).Unix(),
		Exp:  time.Now().Add(2 * time.Hour).Unix(),
	}
	token, err := SignHS512(claims, "s")
	if err != nil {
		t.Fatalf("SignHS512 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS512(token, "s"); err == nil {
		t.Fatal("expected not-yet-valid token to be rejected")
	}
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	claims := Claims{
		Sub:  "9",
		Role: "admin",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}

	token, err := signRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}
	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}

func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	header := map[string]string{
		"alg": "RS256",
		"typ": "JWT",
	}
	if kid != "" {
		header["kid"] = kid
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	headerEnc := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadEnc := base64.RawURLEncoding.EncodeToString(payloadJSON)
	unsigned := headerEnc + "." + payloadEnc
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	signature := base64.RawURLEncoding.EncodeToString(sig)
	return unsigned + "." + signature, nil
}
