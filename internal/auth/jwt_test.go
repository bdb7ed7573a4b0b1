package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerifyOperatorToken(t *testing.T) {
	svc := NewJWTService("test-secret")
	token, err := svc.SignOperatorToken(" dana ", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	op, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if op.Name != "dana" || op.Role != RoleAdmin || !op.IsAdmin() {
		t.Errorf("unexpected operator %+v", op)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("one").SignOperatorToken("dana", RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("two").VerifyToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("secret")
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.SignOperatorToken("dana", RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	svc.now = time.Now
	if _, err := svc.VerifyToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	secret := []byte("secret")
	claims := &JWTClaims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("secret").VerifyToken(token); err == nil {
		t.Error("unknown role must be rejected")
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := &JWTClaims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "mallory"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("secret").VerifyToken(token); err == nil {
		t.Error("unsigned token must be rejected")
	}
}

func TestSignValidation(t *testing.T) {
	svc := NewJWTService("secret")
	if _, err := svc.SignOperatorToken("  ", RoleAdmin, 0); err == nil {
		t.Error("empty name must be rejected")
	}
	if _, err := svc.SignOperatorToken("dana", "root", 0); err == nil {
		t.Error("unknown role must be rejected")
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"admin": RoleAdmin, " Operator ": RoleOperator} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRole("guest"); err == nil {
		t.Error("guest is not a role")
	}
}
