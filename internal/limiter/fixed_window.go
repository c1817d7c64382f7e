package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FixedWindow implements the Fixed Window (Counting) rate limiting algorithm.
//
// How it works:
// 1. Each key gets a window that starts with its first request
// 2. Requests in the window are counted
// 3. Once the window has elapsed the next request starts a new one
// 4. Requests are admitted while the count is below the limit
//
// Advantages:
// - Very simple to understand and implement
// - One small record per key
// - Constant time per request
//
// Disadvantages:
// - Allows traffic spikes at window boundaries (2x limit possible)
// - Less accurate than token bucket for smoothing traffic
//
// Configuration parameters:
// - Window: Duration of each window (e.g., 10 seconds, 1 minute)
// - MaxRequests: Maximum number of requests allowed per window
// - Message: Text returned to rejected callers
//
// State lives in memory, owned by the FixedWindow value, so several gates
// with different configurations can coexist in one process.
type FixedWindow struct {
	mu      sync.Mutex
	clients map[string]*windowState
	config  LimitConfig
	logger  *zap.Logger
	now     func() time.Time
}

// windowState represents the state of one key's window
type windowState struct {
	start time.Time
	count int
}

// NewFixedWindow creates a new Fixed Window rate limiter.
// It returns an error wrapping ErrInvalidConfig when cfg is not usable.
//
// Example: Allow 3 requests per 10 seconds
//
//	gate, err := NewFixedWindow(LimitConfig{Window: 10 * time.Second, MaxRequests: 3}, logger)
func NewFixedWindow(cfg LimitConfig, logger *zap.Logger, opts ...Option) (*FixedWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	cfg.Algorithm = AlgorithmFixedWindow

	return &FixedWindow{
		clients: make(map[string]*windowState),
		config:  cfg,
		logger:  nopIfNil(logger),
		now:     o.now,
	}, nil
}

// MustFixedWindow is like NewFixedWindow but panics on an invalid config.
// It is meant for literal per-route configurations.
func MustFixedWindow(cfg LimitConfig, logger *zap.Logger, opts ...Option) *FixedWindow {
	fw, err := NewFixedWindow(cfg, logger, opts...)
	if err != nil {
		panic(err)
	}
	return fw
}

// Check decides whether a request from key at now is admitted and records it.
func (fw *FixedWindow) Check(key string, now time.Time) Decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	state, ok := fw.clients[key]
	if !ok || now.Sub(state.start) >= fw.config.Window {
		state = &windowState{start: now}
		fw.clients[key] = state
	}

	resetAt := state.start.Add(fw.config.Window)

	if state.count < fw.config.MaxRequests {
		state.count++
		return Decision{
			Allowed:   true,
			Limit:     fw.config.MaxRequests,
			Remaining: fw.config.MaxRequests - state.count,
			ResetAt:   resetAt,
		}
	}

	fw.logger.Debug("request rate limited",
		zap.String("key", key),
		zap.Int("count", state.count),
		zap.Time("reset_at", resetAt),
	)

	return Decision{
		Allowed:    false,
		Limit:      fw.config.MaxRequests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
		Message:    fw.config.Message,
	}
}

// Peek returns the decision key would observe at now for remaining quota and
// reset time, without recording a request.
func (fw *FixedWindow) Peek(key string, now time.Time) Decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	state, ok := fw.clients[key]
	if !ok || now.Sub(state.start) >= fw.config.Window {
		return Decision{
			Allowed:   true,
			Limit:     fw.config.MaxRequests,
			Remaining: fw.config.MaxRequests,
			ResetAt:   now.Add(fw.config.Window),
		}
	}

	resetAt := state.start.Add(fw.config.Window)
	d := Decision{
		Allowed:   state.count < fw.config.MaxRequests,
		Limit:     fw.config.MaxRequests,
		Remaining: fw.config.MaxRequests - state.count,
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		d.Message = fw.config.Message
	}
	return d
}

// Allow checks if a request should be allowed under the fixed window algorithm.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	return fw.Check(key, fw.now()), nil
}

// Status reports the current quota of key without consuming it.
func (fw *FixedWindow) Status(ctx context.Context, key string) (Decision, error) {
	return fw.Peek(key, fw.now()), nil
}

// Reset clears the fixed window state for a specific key.
func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	delete(fw.clients, key)
	return nil
}

// Sweep removes every key whose window has elapsed at now. Such entries
// would be reinitialized on their next request anyway.
func (fw *FixedWindow) Sweep(now time.Time) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	removed := 0
	for key, state := range fw.clients {
		if now.Sub(state.start) >= fw.config.Window {
			delete(fw.clients, key)
			removed++
		}
	}

	if removed > 0 {
		fw.logger.Debug("swept expired windows", zap.Int("removed", removed), zap.Int("remaining", len(fw.clients)))
	}

	return removed
}

// StartJanitor sweeps expired windows every interval until ctx is done.
func (fw *FixedWindow) StartJanitor(ctx context.Context, interval time.Duration) {
	startJanitor(ctx, interval, fw.now, fw.Sweep)
}

// Len returns the number of tracked keys.
func (fw *FixedWindow) Len() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.clients)
}

// Config returns a copy of the gate configuration.
func (fw *FixedWindow) Config() LimitConfig {
	return fw.config
}

// Close performs cleanup when the rate limiter is no longer needed.
func (fw *FixedWindow) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.clients = make(map[string]*windowState)
	return nil
}

// String describes the gate for logs.
func (fw *FixedWindow) String() string {
	return fmt.Sprintf("fixed_window(%d/%s)", fw.config.MaxRequests, fw.config.Window)
}

func startJanitor(ctx context.Context, interval time.Duration, now func() time.Time, sweep func(time.Time) int) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(now())
			}
		}
	}()
}
