package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the claims stored in a request context.
type contextKey string

const claimsKey contextKey = "sessionClaims"

// RequireSession is a middleware that enforces authentication on protected
// routes. It reads the bearer token from the Authorization header, verifies
// it, and stores the claims in the request context. Missing or invalid
// tokens end the request with 401 — with the same body in every failure
// mode, so callers cannot distinguish why verification failed.
func RequireSession(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, verifier)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"auth_error","message":"valid session required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the verified session claims from the request
// context. Returns (nil, false) when the request is anonymous.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// extractClaims reads the Authorization header and verifies the bearer token.
func extractClaims(r *http.Request, verifier *Verifier) (*Claims, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		return nil, errMissingToken
	}
	return verifier.Verify(token)
}

var errMissingToken = errors.New("auth: missing bearer token")
