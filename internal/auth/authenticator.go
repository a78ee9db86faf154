// Package auth provides JWT issuance and validation for the operator API.
// Tokens are minted out of band (deploy tooling) with the shared secret;
// the service itself has no user store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stafflink/shift-digest/internal/domain"
)

// ErrInvalidToken is returned when a token fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Config holds authenticator configuration.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HMAC-signed access tokens. It
// implements httputil.TokenValidator.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{
		config: config,
		now:    time.Now,
	}
}

// Issue creates a signed access token for the given subject and role.
func (a *Authenticator) Issue(subject string, role domain.Role) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an access token, returning the subject
// and role embedded in it.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	}, jwt.WithTimeFunc(func() time.Time { return a.now() }))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		return "", "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return claims.Subject, role, nil
}
