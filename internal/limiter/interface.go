package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Limiter defines the interface for rate limiting algorithms.
// Implementations keep per-key state in memory and must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one unit of quota for key and returns the admission decision.
	// The key parameter typically identifies the client/user/IP being rate limited.
	//
	// In-memory implementations never return an error; callers still treat an
	// error as fail-open so that alternative backends can be plugged in.
	Allow(ctx context.Context, key string) (Decision, error)

	// Status reports the quota key currently has without consuming any.
	Status(ctx context.Context, key string) (Decision, error)

	// Reset clears the state for a specific key.
	Reset(ctx context.Context, key string) error

	// Sweep removes entries that no longer carry information at now and
	// returns how many were removed.
	Sweep(now time.Time) int

	// Len returns the number of keys currently tracked.
	Len() int

	// Config returns the configuration the limiter was built with.
	Config() LimitConfig

	// Close performs cleanup when the rate limiter is no longer needed.
	Close() error
}

// New builds the limiter selected by cfg.Algorithm. An empty algorithm
// selects the fixed window gate.
func New(cfg LimitConfig, logger *zap.Logger, opts ...Option) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case AlgorithmSlidingWindow:
		sw, err := NewSlidingWindow(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return sw, nil
	case AlgorithmLeakyBucket:
		lb, err := NewLeakyBucket(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return lb, nil
	case AlgorithmTokenBucket:
		tb, err := NewTokenBucket(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return tb, nil
	default:
		fw, err := NewFixedWindow(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return fw, nil
	}
}
