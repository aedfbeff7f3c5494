package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/good-yellow-bee/collabhub/internal/api/auth"
	"github.com/good-yellow-bee/collabhub/internal/api/collaborations"
	"github.com/good-yellow-bee/collabhub/internal/api/messages"
	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/api/notifications"
	"github.com/good-yellow-bee/collabhub/internal/api/projects"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/api/users"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)

	// Global middleware
	r.Use(middleware.RequestLogger(s.log, s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.log))
	r.Use(middleware.PrometheusMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(s.config.RequestTimeout))
		r.Use(middleware.JWTAuth(jwtService, s.log))
		r.Use(middleware.RateLimitByUser(s.userLimiter))

		r.Route("/collaborator", collaborations.NewHandler(s.deps.Collaborations, s.log).Routes)
		r.Route("/message", messages.NewHandler(s.deps.Messages, s.log).Routes)
		r.Route("/projects", projects.NewHandler(s.deps.Store.Projects(), s.deps.Store.Users(), s.log).Routes)
		r.Route("/users", users.NewHandler(s.deps.Store.Users(), s.log).Routes)
		r.Route("/notifications", notifications.NewHandler(s.deps.Store.Notifications(), s.log).Routes)
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.ErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.ErrorJSON(w, http.StatusMethodNotAllowed, render.CodeBadRequest, "method not allowed")
	})

	return r
}
