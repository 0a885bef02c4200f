package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrNoToken      = errors.New("no bearer token")
)

// TokenSource supplies the bearer token for outgoing registry calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token, as the CLI does with the token
// from its configuration.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// ForwardedToken returns the token of the inbound request carried by ctx.
type ForwardedToken struct{}

func (ForwardedToken) Token(ctx context.Context) (string, error) {
	if tok := TokenFromContext(ctx); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}

// CheckExpiry reads the exp claim without verifying the signature and
// reports ErrTokenExpired once it has passed. Tokens without exp never
// expire client-side; the server remains the authority.
func CheckExpiry(token string, now time.Time) error {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	return nil
}

// Issue signs an HS256 token for subject that cfg accepts. Used by the CLI
// to mint development tokens and by tests.
func Issue(cfg JWTConfig, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}
