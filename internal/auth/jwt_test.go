package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "my_test_jwt_secret"

func TestGenerateAndParseJWT(t *testing.T) {
	tokenString, err := GenerateJWT(testSecret, "cli", ScopeAdmin, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate JWT: %v", err)
	}
	if tokenString == "" {
		t.Fatalf("empty token string")
	}

	claims, err := ParseJWT(testSecret, tokenString)
	if err != nil {
		t.Fatalf("failed to parse JWT: %v", err)
	}
	if claims.Subject != "cli" {
		t.Errorf("expected subject cli, got %s", claims.Subject)
	}
	if claims.Scope != ScopeAdmin {
		t.Errorf("expected scope admin, got %s", claims.Scope)
	}
	if claims.ID == "" {
		t.Errorf("expected a token id")
	}
}

func TestParseJWT_InvalidSecret(t *testing.T) {
	tokenString, _ := GenerateJWT(testSecret, "cli", "", time.Hour)
	if _, err := ParseJWT("wrong_secret", tokenString); err == nil {
		t.Errorf("expected error for invalid secret, got nil")
	}
}

func TestParseJWT_Expired(t *testing.T) {
	tokenString, _ := GenerateJWT(testSecret, "cli", "", -time.Minute)
	if _, err := ParseJWT(testSecret, tokenString); err == nil {
		t.Errorf("expected error for expired token, got nil")
	}
}

func TestParseJWT_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: "autoagent"}}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseJWT(testSecret, tokenString); err == nil {
		t.Errorf("expected HS512 token to be rejected")
	}
}
