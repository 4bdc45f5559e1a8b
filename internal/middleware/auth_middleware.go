package middleware

import (
	"context"
	"net/http"
	"strings"

	"tillsync-server/internal/domain"
	"tillsync-server/pkg/jwt"
	"tillsync-server/pkg/response"
)

type contextKey string

const ScopeKey contextKey = "scope"

// AuthMiddleware resolves the bearer token into the tenant scope every sync
// operation runs under.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			scope := domain.Scope{
				StoreID:        claims.StoreID,
				OrganizationID: claims.OrganizationID,
				TerminalID:     claims.TerminalID,
			}

			ctx := context.WithValue(r.Context(), ScopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScope returns the authenticated scope, or a zero scope when the request
// never passed the middleware.
func GetScope(r *http.Request) domain.Scope {
	scope, ok := r.Context().Value(ScopeKey).(domain.Scope)
	if !ok {
		return domain.Scope{}
	}
	return scope
}
