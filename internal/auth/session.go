// Package auth verifies signed session tokens issued by the external
// identity provider.
//
// The tracker never handles credentials itself. The identity provider signs a
// compact token (HS256 over a shared secret) carrying the durable account
// identity plus display data, and every surface of this system — the
// WebSocket transport, the snapshot HTTP endpoints — verifies that token
// statelessly. No database lookup is needed to authenticate a request.
//
// All verification failures collapse into apperror.ErrAuth. A caller that
// could distinguish "expired" from "bad signature" from "malformed" would be
// a probe surface for the validation internals, so we give every failure the
// same face.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mhalvorsen/achievo/internal/apperror"
)

const issuer = "achievo"

// Claims is what a verified session token carries.
type Claims struct {
	AccountID   string // durable provider-issued key ("sub")
	DisplayName string
	AvatarURL   string // optional
	ShortID     string // optional: set once the profile has a public handle
	ExpiresAt   time.Time
}

// tokenClaims is the JWT payload. The account identity rides in the standard
// "sub" claim; display data and the short identifier are custom claims.
type tokenClaims struct {
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar,omitempty"`
	ShortID     string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates session tokens against the shared secret.
// It performs no I/O; Verify is a pure function of (token, secret, now).
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the given shared secret.
// The secret should be at least 32 bytes of random data in production.
func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates a session token and returns its claims.
//
// Checks performed by the jwt library: signature validity, expiry, issuer,
// and that the algorithm is HS256 (jwt.WithValidMethods guards against
// algorithm confusion). Any failure — including a token with no subject —
// returns apperror.ErrAuth with no further detail.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperror.Auth()
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || tc.Subject == "" {
		return nil, apperror.Auth()
	}

	return &Claims{
		AccountID:   tc.Subject,
		DisplayName: tc.DisplayName,
		AvatarURL:   tc.AvatarURL,
		ShortID:     tc.ShortID,
		ExpiresAt:   tc.ExpiresAt.Time,
	}, nil
}

// Issuer signs session tokens. In production this lives with the external
// identity provider; the implementation here documents the wire contract and
// backs the test suite and local development.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer sharing the Verifier's secret.
func NewIssuer(secret string) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &Issuer{secret: []byte(secret)}, nil
}

// Issue creates a signed session token for the given claims, valid for d.
func (i *Issuer) Issue(c Claims, d time.Duration) (string, error) {
	now := time.Now()

	tc := tokenClaims{
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		ShortID:     c.ShortID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}
