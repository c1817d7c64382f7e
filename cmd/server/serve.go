package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/flagscore/gate/internal/config"
	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/middleware"
	"github.com/flagscore/gate/internal/service"
	"github.com/flagscore/gate/internal/storage"
	"github.com/flagscore/gate/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := config.InitLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	presets, err := config.LoadPresets(cfg.RateLimit.PresetsFile)
	if err != nil {
		return err
	}

	stats, err := newStatsStore(cfg, logger)
	if err != nil {
		return err
	}
	defer stats.Close()

	rateLimitService, err := service.NewRateLimitService(presets, stats, logger)
	if err != nil {
		return fmt.Errorf("failed to build gates: %w", err)
	}
	defer rateLimitService.Close()

	logger.Info("Starting rate limiting gate",
		zap.String("address", cfg.ServerAddr()),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
		zap.Strings("gates", limiter.PresetNames(presets)),
		zap.String("stats_backend", cfg.Stats.Backend),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rateLimitService.StartJanitor(ctx, cfg.RateLimit.SweepInterval)

	serverCfg := transport.ServerConfig{
		RateLimit:    rateLimitService,
		Health:       service.NewHealthService(stats, logger),
		Logger:       logger,
		KeyExtractor: middleware.NewIPKeyExtractor(cfg.RateLimit.TrustForwardedFor),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	httpCfg := serverCfg
	httpCfg.Address = cfg.ServerAddr()
	servers := []transport.Server{transport.NewHTTPServer(httpCfg)}

	if cfg.Admin.Enabled {
		adminCfg := serverCfg
		adminCfg.Address = cfg.AdminAddr()
		servers = append(servers, transport.NewAdminHTTPServer(adminCfg))
	}

	if cfg.GRPC.Enabled {
		grpcCfg := serverCfg
		grpcCfg.Address = cfg.GRPCAddr()
		servers = append(servers, transport.NewGRPCServer(grpcCfg))
	}

	for _, srv := range servers {
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.String("address", srv.Addr()), zap.Error(err))
		}
	}

	logger.Info("Server stopped")
	return nil
}

func newStatsStore(cfg config.Config, logger *zap.Logger) (storage.StatsStore, error) {
	if cfg.Stats.Backend != config.StatsBackendRedis {
		return storage.NewMemoryStatsStore(), nil
	}

	client, err := config.NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("address", cfg.RedisAddr()))

	return storage.NewRedisStatsStore(client,
		storage.WithStatsPrefix(cfg.Stats.Prefix),
		storage.WithStatsTTL(cfg.Stats.TTL),
	), nil
}
