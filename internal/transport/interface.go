package transport

import (
	"context"
	"time"

	"github.com/flagscore/gate/internal/handler"
	"github.com/flagscore/gate/internal/middleware"
	"github.com/flagscore/gate/internal/service"
	"go.uber.org/zap"
)

// Server defines the interface for different transport implementations (HTTP, gRPC, etc.)
type Server interface {
	// Start starts the transport server
	Start(ctx context.Context) error

	// Stop gracefully stops the transport server
	Stop(ctx context.Context) error

	// Addr returns the address the server is listening on
	Addr() string
}

// ServerConfig contains common configuration for all transport servers
type ServerConfig struct {
	Address      string                    // Address to listen on (e.g., "localhost:8080" or ":50051")
	RateLimit    *service.RateLimitService // Shared gate registry
	Health       *service.HealthService    // Shared health checks
	Logger       *zap.Logger               // Shared logger
	KeyExtractor middleware.KeyExtractor   // Client key for gated HTTP routes; RemoteAddrKeyExtractor when nil
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	HealthPoll   time.Duration // gRPC health refresh interval; 5s when zero
}

// ServiceHandlers contains all service handlers
type ServiceHandlers struct {
	HealthCheck *handler.HealthCheckHandler
	RateLimit   *handler.RateLimitHandler
	Demo        *handler.DemoHandler
}

func newServiceHandlers(cfg ServerConfig) *ServiceHandlers {
	return &ServiceHandlers{
		HealthCheck: handler.NewHealthCheckHandler(cfg.Health, cfg.Logger),
		RateLimit:   handler.NewRateLimitHandler(cfg.RateLimit, cfg.Logger),
		Demo:        handler.NewDemoHandler(),
	}
}
