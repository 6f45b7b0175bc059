package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("secret", "accesstime", time.Hour)

	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	principal, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if principal != "alice" {
		t.Fatalf("principal = %q, want alice", principal)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService("secret", "accesstime", time.Hour)
	good, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	otherSecret, _ := NewService("other", "accesstime", time.Hour).GenerateToken("alice")
	otherIssuer, _ := NewService("secret", "someone-else", time.Hour).GenerateToken("alice")

	expired := NewService("secret", "accesstime", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _ := expired.GenerateToken("alice")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "accesstime"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"tampered", good + "x"},
		{"wrong secret", otherSecret},
		{"wrong issuer", otherIssuer},
		{"expired", expiredToken},
		{"unsigned", none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestGenerateTokenRequiresPrincipal(t *testing.T) {
	if _, err := NewService("secret", "", 0).GenerateToken(""); err == nil {
		t.Fatal("expected empty principal to be rejected")
	}
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	if err := Require(ctx, "alice"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without principal, got %v", err)
	}

	ctx = WithPrincipal(ctx, "alice")
	if err := Require(ctx, "alice"); err != nil {
		t.Fatalf("Require(alice): %v", err)
	}
	if err := Require(ctx, "bob"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for bob, got %v", err)
	}

	if _, ok := PrincipalFrom(WithPrincipal(context.Background(), "")); ok {
		t.Fatal("empty principal must not authenticate")
	}
}
