// Package auth provides JWT validation middleware for the HTTP API.
// Account creation and login live in a separate identity service; this
// process only verifies tokens it issued.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/code-arena/pkg/http/errors"
)

type contextKey string

const claimsKey contextKey = "claims"

// Middleware validates JWT tokens and injects user claims into request context.
func Middleware(tokens *jwt.Manager, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r) // allow unauthenticated requests through
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid authorization header")
				return
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				logger.Warn().Err(err).Msg("token validation failed")
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth ensures the request is authenticated.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the validated claims for the request, or nil.
func ClaimsFromContext(ctx context.Context) *jwt.Claims {
	claims, ok := ctx.Value(claimsKey).(*jwt.Claims)
	if !ok {
		return nil
	}
	return claims
}
