package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/auth"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// Context keys for storing caller information.
type contextKey string

const (
	claimsKey contextKey = "claims"
)

func unauthorized(w http.ResponseWriter) {
	render.ErrorJSON(w, http.StatusUnauthorized, render.CodeUnauthorized, "invalid or expired token")
}

func forbidden(w http.ResponseWriter) {
	render.ErrorJSON(w, http.StatusForbidden, "FORBIDDEN", "access denied")
}

// JWTAuth returns middleware that requires a valid bearer token.
func JWTAuth(jwtService *auth.JWTService, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w)
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				log.Debug("jwt auth failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims returns the JWT claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey).(*auth.Claims); ok {
		return c
	}
	return nil
}

// GetUserID returns the user ID from context.
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// GetRole returns the user role from context.
func GetRole(ctx context.Context) models.Role {
	if c := GetClaims(ctx); c != nil {
		return c.Role
	}
	return ""
}

// GetActor returns the authenticated caller. The zero Actor is returned for
// unauthenticated requests.
func GetActor(ctx context.Context) models.Actor {
	if c := GetClaims(ctx); c != nil {
		return c.Actor()
	}
	return models.Actor{}
}
