// Package auth issues and verifies the signed identity tokens that
// authorize race actions.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/raceline/internal/errors"
)

const issuer = "raceline"

// DefaultTTL bounds token lifetime when the caller does not pick one.
const DefaultTTL = 24 * time.Hour

// ErrUnauthenticated indicates a missing, malformed, or expired token.
var ErrUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "invalid identity token")

// Authenticator mints and verifies HMAC-signed identity tokens.
type Authenticator struct {
	secret []byte
	clock  func() time.Time
}

// New creates an Authenticator from a deployment signing secret.
func New(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	return &Authenticator{secret: secret, clock: time.Now}, nil
}

// Mint signs a token whose subject is the given identity.
func (a *Authenticator) Mint(identity string, ttl time.Duration) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", errors.New("identity is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := a.clock().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks a token's signature and lifetime and returns its identity.
func (a *Authenticator) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return a.clock() }),
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid identity token", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "token has no subject")
	}
	return claims.Subject, nil
}
