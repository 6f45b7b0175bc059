// Package auth issues and verifies the signed tokens that identify the
// principal behind each operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenExpiration is the default expiration time for JWT tokens.
	DefaultTokenExpiration = 24 * time.Hour
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated is returned when an operation needs a principal
	// that the context does not carry.
	ErrUnauthenticated = errors.New("principal not authenticated")
)

// Claims represents the JWT claims for a principal. The principal is the
// registered subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and validates principal tokens.
type Service struct {
	jwtSecret       []byte
	issuer          string
	tokenExpiration time.Duration
	now             func() time.Time
}

// NewService creates a new authentication service.
func NewService(jwtSecret, issuer string, tokenExpiration time.Duration) *Service {
	if tokenExpiration == 0 {
		tokenExpiration = DefaultTokenExpiration
	}

	return &Service{
		jwtSecret:       []byte(jwtSecret),
		issuer:          issuer,
		tokenExpiration: tokenExpiration,
		now:             time.Now,
	}
}

// GenerateToken generates a new JWT token for principal.
func (s *Service) GenerateToken(principal string) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("principal is required")
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and returns the principal it names.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying an authenticated principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the authenticated principal carried by ctx.
func PrincipalFrom(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalKey{}).(string)
	return principal, ok && principal != ""
}

// Require checks that ctx carries exactly principal.
func Require(ctx context.Context, principal string) error {
	got, ok := PrincipalFrom(ctx)
	if !ok || got != principal {
		return ErrUnauthenticated
	}
	return nil
}
