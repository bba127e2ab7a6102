// Bearer-token authentication for the /process endpoint.
//
// Tokens are HS256 JWTs verified against a shared secret. This is a pure
// boundary check: no workspace is ever provisioned for an unauthenticated
// request, and the credential never reaches logs or snapshots.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/morphlabs/morphd/internal/server/dto"
)

// requireAuth wraps next with bearer JWT verification. An empty secret
// disables authentication (local development only).
func requireAuth(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"})); err != nil {
			writeError(w, dto.Unauthorized("invalid token"))
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", dto.Unauthorized("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", dto.Unauthorized("Authorization header must be a bearer token")
	}
	return token, nil
}
