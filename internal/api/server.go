// Package api provides the HTTP REST API for Gatehouse.
//
// It exposes login and session management, user administration, section
// access policy (per-user overrides and per-role defaults), and the audit
// trail to admin UIs and downstream services.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thornfield/gatehouse/internal/access"
	"github.com/thornfield/gatehouse/internal/audit"
	"github.com/thornfield/gatehouse/internal/auth"
	"github.com/thornfield/gatehouse/internal/infrastructure/config"
	"github.com/thornfield/gatehouse/internal/infrastructure/logging"
	"github.com/thornfield/gatehouse/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Users      auth.UserRepository
	Identities auth.IdentityRepository
	Tokens     *auth.TokenService
	Versions   *auth.VersionCache
	Resolver   *auth.StrategyResolver
	Hasher     *auth.PasswordHasher
	Access     *access.Service
	Audit      *audit.Recorder
	AuditRepo  audit.Repository
	Metrics    *metrics.Client // optional, nil when metrics are disabled
	TokenTTL   time.Duration
	Version    string
}

// Server is the HTTP API server for Gatehouse.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	users      auth.UserRepository
	identities auth.IdentityRepository
	tokens     *auth.TokenService
	versions   *auth.VersionCache
	resolver   *auth.StrategyResolver
	hasher     *auth.PasswordHasher
	access     *access.Service
	audit      *audit.Recorder
	auditRepo  audit.Repository
	metrics    *metrics.Client
	tokenTTL   time.Duration
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil || deps.Identities == nil {
		return nil, fmt.Errorf("user and identity repositories are required")
	}
	if deps.Tokens == nil || deps.Versions == nil {
		return nil, fmt.Errorf("token service and version cache are required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("strategy resolver is required")
	}
	if deps.Access == nil {
		return nil, fmt.Errorf("access service is required")
	}
	if deps.Audit == nil || deps.AuditRepo == nil {
		return nil, fmt.Errorf("audit recorder and repository are required")
	}

	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0, 0, 0)
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		users:      deps.Users,
		identities: deps.Identities,
		tokens:     deps.Tokens,
		versions:   deps.Versions,
		resolver:   deps.Resolver,
		hasher:     hasher,
		access:     deps.Access,
		audit:      deps.Audit,
		auditRepo:  deps.AuditRepo,
		metrics:    deps.Metrics,
		tokenTTL:   deps.TokenTTL,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
