package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "secret") {
		t.Fatalf("correct password rejected")
	}
	if VerifyPassword(hash, "Secret") {
		t.Fatalf("wrong password accepted")
	}
}

func TestNewAccessTokenClaims(t *testing.T) {
	at, err := NewAccessToken("k", "tenant-1", "TENANT", 60)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, err := jwt.Parse(at.Token, func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	if err != nil || !tok.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != "tenant-1" || claims["role"] != "TENANT" {
		t.Fatalf("claims=%v", claims)
	}
	if exp, _ := claims.GetExpirationTime(); exp == nil || exp.Unix() != at.Exp.Unix() {
		t.Fatalf("exp=%v, want %v", exp, at.Exp)
	}
	if _, err := jwt.Parse(at.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil }); err == nil {
		t.Fatalf("token verified with the wrong key")
	}
}
