// ABOUTME: HTTP middleware that resolves caller identity on API endpoints
// ABOUTME: Supports Authorization bearer tokens and platform-forwarded headers

package auth

import (
	"net/http"
	"strings"
)

// Headers set by fronting platforms that strip the Authorization header and
// forward the caller's token and email instead.
const (
	ForwardedTokenHeader = "x-forwarded-access-token"
	ForwardedEmailHeader = "x-forwarded-email"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest returns the caller's bearer token, preferring the
// platform-forwarded header over the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get(ForwardedTokenHeader); forwarded != "" {
		return forwarded
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// IdentityFromRequest resolves the caller Identity from request headers.
// Returns nil and an error message when no identity can be established.
func IdentityFromRequest(r *http.Request, identifier TokenIdentifier) (*Identity, string) {
	token := TokenFromRequest(r)

	// A forwarded email identifies the caller even when the platform
	// strips the Authorization header entirely.
	if email := r.Header.Get(ForwardedEmailHeader); email != "" {
		return &Identity{Principal: email, Token: token}, ""
	}

	if token == "" {
		return nil, "missing credentials"
	}

	principal, err := identifier.Identify(token)
	if err != nil {
		return nil, "invalid token"
	}

	return &Identity{Principal: principal, Token: token}, ""
}

// Middleware creates an HTTP middleware that resolves the caller identity and
// attaches it to the request context. Requests with no resolvable identity are
// rejected with 401 before reaching any handler.
func Middleware(identifier TokenIdentifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, errMsg := IdentityFromRequest(r, identifier)
			if errMsg != "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"` + errMsg + `"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
