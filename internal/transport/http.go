package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/metrics"
	"github.com/flagscore/gate/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPServer implements the Server interface for HTTP transport
type HTTPServer struct {
	server   *http.Server
	router   *mux.Router
	address  string
	logger   *zap.Logger
	handlers *ServiceHandlers
	config   ServerConfig

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer creates the public HTTP server: health and the gated /api routes.
// Gate administration is served by NewAdminHTTPServer on its own listener.
func NewHTTPServer(cfg ServerConfig) *HTTPServer {
	return newHTTPServer(cfg, (*HTTPServer).registerPublicRoutes)
}

// NewAdminHTTPServer creates the admin HTTP server: /ratelimit/*, /metrics and health.
// It has no access control of its own and should listen on a private address.
func NewAdminHTTPServer(cfg ServerConfig) *HTTPServer {
	return newHTTPServer(cfg, (*HTTPServer).registerAdminRoutes)
}

func newHTTPServer(cfg ServerConfig, register func(*HTTPServer)) *HTTPServer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = middleware.RemoteAddrKeyExtractor
	}

	router := mux.NewRouter()

	hs := &HTTPServer{
		address:  cfg.Address,
		logger:   cfg.Logger,
		handlers: newServiceHandlers(cfg),
		router:   router,
		config:   cfg,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	hs.router.Use(middleware.RequestID(hs.logger))
	hs.router.HandleFunc("/health", hs.handlers.HealthCheck.HealthCheck()).Methods(http.MethodGet)
	register(hs)

	return hs
}

// registerPublicRoutes registers the routes reachable by API clients
func (hs *HTTPServer) registerPublicRoutes() {
	api := hs.router.PathPrefix("/api").Subrouter()
	api.Handle("/test-rate-limit", hs.gated(limiter.PresetTest, hs.handlers.Demo.TestRateLimit())).Methods(http.MethodGet)
	api.Handle("/test-strict", hs.gated(limiter.PresetStrict, hs.handlers.Demo.TestStrict())).Methods(http.MethodGet)
}

// registerAdminRoutes registers gate administration and metrics
func (hs *HTTPServer) registerAdminRoutes() {
	hs.router.Handle("/metrics", metrics.MetricsHandler()).Methods(http.MethodGet)

	hs.router.HandleFunc("/ratelimit/check", hs.handlers.RateLimit.Check()).Methods(http.MethodPost)
	hs.router.HandleFunc("/ratelimit/status/{gate}/{key}", hs.handlers.RateLimit.Status()).Methods(http.MethodGet)
	hs.router.HandleFunc("/ratelimit/reset/{gate}/{key}", hs.handlers.RateLimit.Reset()).Methods(http.MethodDelete)
	hs.router.HandleFunc("/ratelimit/gates", hs.handlers.RateLimit.Gates()).Methods(http.MethodGet)
	hs.router.HandleFunc("/ratelimit/stats", hs.handlers.RateLimit.Stats()).Methods(http.MethodGet)
}

func (hs *HTTPServer) gated(gate string, next http.Handler) http.Handler {
	return middleware.RateLimitMiddleware(hs.config.RateLimit, gate, hs.config.KeyExtractor, hs.logger)(next)
}

// Handler returns the root HTTP handler
func (hs *HTTPServer) Handler() http.Handler {
	return hs.router
}

// Start starts the HTTP server
func (hs *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", hs.address)
	if err != nil {
		hs.logger.Error("Failed to listen on address", zap.String("address", hs.address), zap.Error(err))
		return err
	}

	hs.mu.Lock()
	hs.listener = listener
	hs.mu.Unlock()

	hs.logger.Info("Starting HTTP server", zap.String("address", listener.Addr().String()))

	go func() {
		if err := hs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (hs *HTTPServer) Stop(ctx context.Context) error {
	hs.logger.Info("Stopping HTTP server")
	return hs.server.Shutdown(ctx)
}

// Addr returns the address the HTTP server is listening on
func (hs *HTTPServer) Addr() string {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.listener != nil {
		return hs.listener.Addr().String()
	}
	return hs.address
}
