package limiter

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Algorithm types
const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmLeakyBucket   = "leaky_bucket"
)

// ErrInvalidConfig is returned when a LimitConfig cannot produce a limiter.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// LimitConfig holds the configuration for a rate limiter
type LimitConfig struct {
	Window      time.Duration // length of the counting window
	MaxRequests int           // maximum admitted requests per window
	Message     string        // returned to rejected callers
	Algorithm   string        // fixed_window (default), sliding_window, token_bucket or leaky_bucket
}

// Validate checks that the configuration can be used to build a limiter.
// Every failure wraps ErrInvalidConfig.
func (c LimitConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be greater than 0", ErrInvalidConfig)
	}

	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be greater than 0", ErrInvalidConfig)
	}

	switch c.Algorithm {
	case "", AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmTokenBucket, AlgorithmLeakyBucket:
	default:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, c.Algorithm)
	}

	return nil
}

// Option customizes a limiter at construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of the current time used by Allow and Status.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
