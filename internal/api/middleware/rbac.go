package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// RequireRole returns middleware that requires one of the given roles.
// Admins always pass.
func RequireRole(allowedRoles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetRole(r.Context())
			if userRole == "" {
				forbidden(w)
				return
			}
			if userRole == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range allowedRoles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			forbidden(w)
		})
	}
}

// RequireAdmin is shorthand for RequireRole(RoleAdmin).
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)(next)
}

// RequireAdminOrSelf allows admins, and callers whose user id equals the
// named URL parameter.
func RequireAdminOrSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := GetActor(r.Context())
			if actor.IsAdmin() || actor.Is(chi.URLParam(r, param)) {
				next.ServeHTTP(w, r)
				return
			}
			forbidden(w)
		})
	}
}

// RequireAdminOrEither allows admins, and callers whose user id equals one
// of the two named URL parameters.
func RequireAdminOrEither(a, b string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := GetActor(r.Context())
			if actor.IsAdmin() || actor.Is(chi.URLParam(r, a)) || actor.Is(chi.URLParam(r, b)) {
				next.ServeHTTP(w, r)
				return
			}
			forbidden(w)
		})
	}
}
