// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/collaborations"
	"github.com/good-yellow-bee/collabhub/internal/api/health"
	"github.com/good-yellow-bee/collabhub/internal/api/messages"
	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address          string
	JWTSecret        []byte
	AccessTokenTTL   time.Duration
	AllowedOrigins   []string // CORS origins; empty disables CORS headers
	RateLimitPerUser int      // requests per minute per user (or IP when unauthenticated)
	RequestTimeout   time.Duration
	Verbose          bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 24 * time.Hour
	}
	if c.RateLimitPerUser == 0 {
		c.RateLimitPerUser = 120
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Deps are the services the API serves.
type Deps struct {
	Store          storage.Storage
	Collaborations collaborations.Service
	Messages       messages.Service
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	log           *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
	userLimiter   *middleware.RateLimiter
}

// New creates a new API server.
func New(cfg *Config, deps Deps, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Collaborations == nil || deps.Messages == nil {
		return nil, fmt.Errorf("collaboration and message services are required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		deps:          deps,
		log:           log.Named("api"),
		healthHandler: health.NewHandler(),
		userLimiter:   middleware.NewRateLimiter(cfg.RateLimitPerUser),
	}

	s.server = &http.Server{
		Addr:    cfg.Address,
		Handler: s.setupRouter(),
		// Attachment uploads dominate request size, so reads get more room than writes.
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go func() { _ = s.userLimiter.Run(limiterCtx) }()

	go func() {
		s.log.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
