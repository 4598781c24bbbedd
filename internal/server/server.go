// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/config"
	"github.com/vyrodovalexey/storefront/internal/handler"
	"github.com/vyrodovalexey/storefront/internal/middleware"
	"github.com/vyrodovalexey/storefront/internal/state"
	"github.com/vyrodovalexey/storefront/internal/store"
)

// readyTimeout bounds the backend probe of /ready.
const readyTimeout = 2 * time.Second

// readyProbeSession is the session whose key /ready loads from the backend.
const readyProbeSession = "readiness-probe"

// Dependencies are the services the server routes to.
type Dependencies struct {
	Registry *state.Registry
	Backend  store.Store
	Catalog  handler.Catalog
	Checkout handler.Checkout
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	probeServer *http.Server
	router      *mux.Router
	probeRouter *mux.Router
	config      *config.Config
	logger      *zap.Logger
	wsHandler   *handler.WebSocketHandler
	registry    *state.Registry
	backend     store.Store
	pruneCtx    context.Context
	stopPruner  context.CancelFunc
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:      mux.NewRouter(),
		probeRouter: mux.NewRouter(),
		config:      cfg,
		logger:      logger,
		registry:    deps.Registry,
		backend:     deps.Backend,
	}
	s.pruneCtx, s.stopPruner = context.WithCancel(context.Background())

	s.setupMiddleware()
	s.setupRoutes(deps)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	allowedOrigins := s.config.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := middleware.CORSOptions{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type",
			middleware.RequestIDHeader,
			middleware.SessionIDHeader,
		},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			middleware.SessionIDHeader,
		},
	}

	// Apply middleware in order (first applied = outermost)
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(cors)))
	s.router.Use(mux.MiddlewareFunc(middleware.Session(s.config.SecureCookie)))
}

// setupRoutes configures the API and probe routes.
func (s *Server) setupRoutes(deps Dependencies) {
	restHandler := handler.NewRESTHandler(handler.Dependencies{
		Sessions: deps.Registry,
		Catalog:  deps.Catalog,
		Checkout: deps.Checkout,
		Ready:    s.ready,
	}, s.logger)
	restHandler.RegisterRoutes(s.router)

	s.wsHandler = handler.NewWebSocketHandler(deps.Registry, deps.Catalog, handler.WebSocketOptions{
		SearchDebounce: s.config.SearchDebounce,
		AllowedOrigins: s.config.CORSOrigins,
	}, s.logger)
	s.wsHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	// Preflight requests must match a route for the middleware chain to run.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Probe routes carry no session or CORS handling.
	s.probeRouter.HandleFunc("/health", restHandler.HealthCheck).Methods(http.MethodGet)
	s.probeRouter.HandleFunc("/ready", restHandler.ReadyCheck).Methods(http.MethodGet)
	if s.config.MetricsEnabled {
		s.probeRouter.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHTTPServer configures the HTTP servers.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	if s.config.ProbePort == 0 {
		return
	}
	s.probeServer = &http.Server{
		Addr:              s.config.ProbeAddress(),
		Handler:           s.probeRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// ready reports whether the persistence backend answers. A missing record
// means the backend is reachable.
func (s *Server) ready(ctx context.Context) error {
	if s.backend == nil || s.registry == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	_, err := s.backend.Load(ctx, s.registry.Key(readyProbeSession))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("store backend: %w", err)
	}
	return nil
}

// Start starts the HTTP servers and the idle session pruner. It blocks
// until the main server stops.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
	)

	if s.registry != nil && s.config.SessionPruneInterval > 0 {
		go s.registry.RunPruner(s.pruneCtx, s.config.SessionPruneInterval, s.config.SessionIdleTimeout)
	}

	if s.probeServer != nil {
		go func() {
			s.logger.Info("starting probe server", zap.String("address", s.config.ProbeAddress()))
			if err := s.probeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("probe server failed", zap.Error(err))
			}
		}()
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.stopPruner()

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if s.probeServer != nil {
		if err := s.probeServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("probe server shutdown: %w", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProbeRouter returns the probe server's router for testing purposes.
func (s *Server) ProbeRouter() *mux.Router {
	return s.probeRouter
}
