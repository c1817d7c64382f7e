package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SlidingWindow implements the Sliding Window (Log) rate limiting algorithm.
//
// How it works:
// 1. Each key keeps the timestamps of its admitted requests
// 2. Timestamps older than Window are dropped on every check
// 3. A request is admitted while fewer than MaxRequests timestamps remain
//
// Advantages:
// - More accurate than fixed window (no traffic spikes at boundaries)
// - Any span of Window admits at most MaxRequests
//
// Disadvantages:
// - Memory grows with MaxRequests (one timestamp per admitted request)
// - Slightly higher computational overhead
type SlidingWindow struct {
	mu     sync.Mutex
	logs   map[string][]time.Time
	config LimitConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSlidingWindow creates a new Sliding Window rate limiter.
//
// Example: Allow 100 requests in any one minute
//
//	limiter, err := NewSlidingWindow(LimitConfig{Window: time.Minute, MaxRequests: 100}, logger)
func NewSlidingWindow(cfg LimitConfig, logger *zap.Logger, opts ...Option) (*SlidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	cfg.Algorithm = AlgorithmSlidingWindow

	return &SlidingWindow{
		logs:   make(map[string][]time.Time),
		config: cfg,
		logger: nopIfNil(logger),
		now:    o.now,
	}, nil
}

// Check decides whether a request from key at now is admitted and records it.
func (sw *SlidingWindow) Check(key string, now time.Time) Decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	log := sw.prune(sw.logs[key], now)

	if len(log) < sw.config.MaxRequests {
		log = append(log, now)
		sw.logs[key] = log
		return sw.admitted(log, now)
	}

	sw.logs[key] = log
	d := sw.rejected(log, now)

	sw.logger.Debug("request rate limited", zap.String("key", key), zap.Duration("retry_after", d.RetryAfter))
	return d
}

// Peek returns the quota key has at now without recording a request.
func (sw *SlidingWindow) Peek(key string, now time.Time) Decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	log := sw.prune(append([]time.Time(nil), sw.logs[key]...), now)
	if len(log) < sw.config.MaxRequests {
		return sw.admitted(log, now)
	}
	return sw.rejected(log, now)
}

// admitted describes a log with room left. The full quota is back one
// window after the newest entry.
func (sw *SlidingWindow) admitted(log []time.Time, now time.Time) Decision {
	resetAt := now.Add(sw.config.Window)
	if len(log) > 0 {
		resetAt = log[len(log)-1].Add(sw.config.Window)
	}

	return Decision{
		Allowed:   true,
		Limit:     sw.config.MaxRequests,
		Remaining: sw.config.MaxRequests - len(log),
		ResetAt:   resetAt,
	}
}

// rejected describes a full log; the next slot frees when the oldest entry expires.
func (sw *SlidingWindow) rejected(log []time.Time, now time.Time) Decision {
	return Decision{
		Allowed:    false,
		Limit:      sw.config.MaxRequests,
		Remaining:  0,
		ResetAt:    log[len(log)-1].Add(sw.config.Window),
		RetryAfter: log[0].Add(sw.config.Window).Sub(now),
		Message:    sw.config.Message,
	}
}

// prune drops timestamps that are at least one window old. log is sorted.
func (sw *SlidingWindow) prune(log []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(log) && now.Sub(log[i]) >= sw.config.Window {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

// Allow checks if a request should be allowed under the sliding window algorithm.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	return sw.Check(key, sw.now()), nil
}

// Status reports the current quota of key without consuming it.
func (sw *SlidingWindow) Status(ctx context.Context, key string) (Decision, error) {
	return sw.Peek(key, sw.now()), nil
}

// Reset clears the request log for a specific key.
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	delete(sw.logs, key)
	return nil
}

// Sweep removes every key whose log is empty once expired timestamps are dropped.
func (sw *SlidingWindow) Sweep(now time.Time) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	removed := 0
	for key, log := range sw.logs {
		log = sw.prune(log, now)
		if len(log) == 0 {
			delete(sw.logs, key)
			removed++
			continue
		}
		sw.logs[key] = log
	}

	if removed > 0 {
		sw.logger.Debug("swept empty logs", zap.Int("removed", removed), zap.Int("remaining", len(sw.logs)))
	}
	return removed
}

// StartJanitor sweeps empty logs every interval until ctx is done.
func (sw *SlidingWindow) StartJanitor(ctx context.Context, interval time.Duration) {
	startJanitor(ctx, interval, sw.now, sw.Sweep)
}

// Len returns the number of tracked keys.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.logs)
}

// Config returns a copy of the limiter configuration.
func (sw *SlidingWindow) Config() LimitConfig {
	return sw.config
}

// Close performs cleanup when the rate limiter is no longer needed.
func (sw *SlidingWindow) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.logs = make(map[string][]time.Time)
	return nil
}
