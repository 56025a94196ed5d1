// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts bearer tokens and attaches the caller Identity to context

package auth

import (
	"net/http"
	"strings"
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

// HTTPAuthMiddleware creates an HTTP middleware that extracts and
// validates JWT tokens, attaching the Identity to the request context.
// Unauthenticated requests are rejected with 401, never silently passed.
//
// allowQueryToken additionally accepts the token as a `?token=` query
// parameter. Websocket opens from browsers cannot set headers, so the
// upgrade endpoint needs it; everything else stays header-only to keep
// tokens out of access logs.
func HTTPAuthMiddleware(verifier TokenVerifier, allowQueryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				if allowQueryToken {
					token = r.URL.Query().Get("token")
				}
				if token == "" {
					http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
					return
				}
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireStaffHTTP creates an HTTP middleware that requires a staff
// caller. Must be used after HTTPAuthMiddleware.
func RequireStaffHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := FromContext(r.Context())
			if identity == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			if !identity.IsStaff() {
				http.Error(w, `{"error":"staff role required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
