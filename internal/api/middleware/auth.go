package middleware

import (
	"context"
	"net/http"

	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/auth"
)

const claimsKey contextKey = "auth_claims"

// RequireAuth validates the bearer token and stores the claims in the request
// context. Requests without a valid token receive 401 problem+json.
func RequireAuth(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="solidus"`)
				problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", err, env)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="solidus", error="invalid_token"`)
				problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only requests whose authenticated role is one of the
// given roles. It must run after RequireAuth.
func RequireRole(env string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", auth.ErrMissingToken, env)
				return
			}
			if !auth.HasRole(claims.Role, roles...) {
				problem.Write(w, r, http.StatusForbidden, "https://solidus-pim.dev/problems/forbidden", "Forbidden", problem.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff restricts a route to admin and employee users.
func RequireStaff(env string) func(http.Handler) http.Handler {
	return RequireRole(env, auth.RoleAdmin, auth.RoleEmployee)
}

// ClaimsFromContext returns the authenticated claims, or nil for anonymous
// requests.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// ActorFromContext returns the authenticated username, or "anonymous".
func ActorFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil && claims.Username != "" {
		return claims.Username
	}
	return "anonymous"
}

// SubjectFromContext returns the authenticated user ULID, or empty string.
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
