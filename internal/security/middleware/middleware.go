package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security"
	"github.com/yourorg/credvault/internal/security/auth"
	"github.com/yourorg/credvault/internal/security/ratelimit"
)

type PrincipalContextKey struct{}

// publicPath reports whether a request path is reachable without a token.
func publicPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" ||
		path == "/api/seed" ||
		strings.HasPrefix(path, "/api/auth/")
}

// PrincipalMiddleware authenticates the request and resolves the principal:
// the role comes from the token snapshot, the membership sets from the
// identity store at request time. The resolved principal is attached to the
// request context for handlers and never read from ambient state.
func PrincipalMiddleware(tm *auth.TokenManager, users domain.UserRepository, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				log.Warn("token for unknown user",
					slog.String("user_id", claims.UserID),
					slog.String("error", err.Error()),
				)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			principal := security.PrincipalFromUser(user)
			// The token role is authoritative for the request lifetime.
			principal.Role = domain.Role(claims.Role)

			ctx := context.WithValue(r.Context(), PrincipalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles authenticated traffic per user.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := ""
			if p, ok := r.Context().Value(PrincipalContextKey{}).(security.Principal); ok {
				key = p.UserID
			}

			if !limiter.Allow(key) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipalFromContext returns the resolved principal, or false when the
// request was not authenticated.
func GetPrincipalFromContext(ctx context.Context) (security.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey{}).(security.Principal)
	return p, ok
}
