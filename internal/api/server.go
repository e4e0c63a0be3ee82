package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/academia-core/internal/audit"
	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
	"github.com/nerrad567/academia-core/internal/infrastructure/config"
	"github.com/nerrad567/academia-core/internal/infrastructure/database"
	"github.com/nerrad567/academia-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Internal  config.InternalConfig
	WS        config.WebSocketConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger

	Tokens   *auth.TokenService
	Resolver *auth.Resolver
	Users    auth.UserRepository
	Policy   *auth.Policy // defaults to auth.DefaultPolicy()
	Courses  *course.Service

	AuditRepo  audit.Repository     // optional
	DB         *database.DB         // optional, used by the health check
	UploadsDir string               // optional, served at /uploads/ when set
	Registry   *prometheus.Registry // optional, a private registry is created when nil
	Version    string
}

// Server is the HTTP API server for academia-core.
//
// It owns the public listener, the optional internal RPC listener, the
// WebSocket hub and the async audit writer. The server is created with
// New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	internalCfg config.InternalConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger

	tokens   *auth.TokenService
	resolver *auth.Resolver
	users    auth.UserRepository
	policy   *auth.Policy
	gate     *auth.Gate
	courses  *course.Service

	auditRepo  audit.Repository
	auditCh    chan *audit.AuditLog
	db         *database.DB
	uploadsDir string
	version    string

	metrics *metrics
	limiter *ipLimiter
	hub     *Hub

	server   *http.Server
	internal *http.Server
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The gate is built here so its decisions feed the server's metrics, and
// the hub is registered as the course service's event notifier. The server
// is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token service is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("identity resolver is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Courses == nil:
		return nil, fmt.Errorf("course service is required")
	}

	policy := deps.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:         deps.Config,
		internalCfg: deps.Internal,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		tokens:      deps.Tokens,
		resolver:    deps.Resolver,
		users:       deps.Users,
		policy:      policy,
		courses:     deps.Courses,
		auditRepo:   deps.AuditRepo,
		db:          deps.DB,
		uploadsDir:  deps.UploadsDir,
		version:     deps.Version,
		metrics:     newMetrics(registry),
		limiter:     newIPLimiter(deps.RateLimit),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	s.gate = auth.NewGate(deps.Tokens, auth.WithObserver(s.metrics.observeGate))
	s.hub = NewHub(deps.WS, deps.Logger, policy)
	s.hub.onForbidden = func(id *auth.Identity, op auth.Operation, err error) {
		s.recordForbidden(auth.TransportWebSocket, id, op, err)
	}
	s.hub.clientsGauge = s.metrics.wsClients
	deps.Courses.SetNotifier(s.hub)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the audit writer and the rate-limiter
// janitor, then launches the public listener and, when enabled, the internal
// RPC listener in background goroutines. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.limiter.cleanupLoop(srvCtx)
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	if s.internalCfg.Enabled {
		s.internal = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", s.internalCfg.Host, s.internalCfg.Port),
			Handler:           s.buildInternalRouter(),
			ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		}
		go func() {
			s.logger.Warn("internal RPC listener starting; requests on it are not authenticated",
				"address", s.internal.Addr)
			if err := s.internal.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("internal RPC server error", "error", err)
			}
		}()
	}

	return nil
}

// Close gracefully shuts down both listeners.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, limiter janitor, audit writer)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
	}
	if s.internal != nil {
		if err := s.internal.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down internal RPC server: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the API server is running and responsive.
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

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
