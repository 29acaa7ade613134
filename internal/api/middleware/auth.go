package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/places/internal/api/problem"
	"github.com/Togather-Foundation/places/internal/auth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKeyAuth string

const claimsKey contextKeyAuth = "claims"

// RequireUser validates the bearer token and stores its claims in the
// request context. Missing or invalid tokens get 401.
func RequireUser(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="places"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing authorization header", problem.ErrUnauthorized, env)
				return
			}

			token, err := auth.TokenFromHeader(authHeader)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="places"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid authorization format", err, env)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="places", error="invalid_token"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid token", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			logger := LoggerFromContext(ctx).With().Str("user_id", claims.UserID()).Logger()
			ctx = logger.WithContext(ctx)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", claims.UserID()))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the verified token claims, or nil outside RequireUser.
func Claims(r *http.Request) *auth.Claims {
	if r == nil {
		return nil
	}
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// RequesterID returns the verified user id, or "" when unauthenticated.
func RequesterID(r *http.Request) string {
	return Claims(r).UserID()
}
