package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LeakyBucket implements the Leaky Bucket (as a meter) rate limiting algorithm.
//
// How it works:
// 1. Each admitted request adds one unit to the key's bucket
// 2. The bucket leaks one unit every Window/MaxRequests, in whole steps
// 3. If the bucket holds MaxRequests units, new requests are rejected
//
// Advantages:
// - Smooths out burst traffic to a constant rate
// - Constant processing rate is predictable
//
// Disadvantages:
// - Leaks in discrete steps, so a request just before a step is rejected
// - A full bucket only accepts one request per leak interval
type LeakyBucket struct {
	mu           sync.Mutex
	buckets      map[string]*leakyBucketState
	config       LimitConfig
	leakInterval time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// leakyBucketState represents the state of one key's bucket
type leakyBucketState struct {
	level    int       // units currently in the bucket
	lastLeak time.Time // when the last whole unit leaked
}

// NewLeakyBucket creates a new Leaky Bucket rate limiter.
//
// Example: Bucket holds 10 requests and drains over one minute
//
//	limiter, err := NewLeakyBucket(LimitConfig{Window: time.Minute, MaxRequests: 10}, logger)
func NewLeakyBucket(cfg LimitConfig, logger *zap.Logger, opts ...Option) (*LeakyBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	cfg.Algorithm = AlgorithmLeakyBucket

	leakInterval := cfg.Window / time.Duration(cfg.MaxRequests)
	if leakInterval <= 0 {
		leakInterval = 1
	}

	return &LeakyBucket{
		buckets:      make(map[string]*leakyBucketState),
		config:       cfg,
		leakInterval: leakInterval,
		logger:       nopIfNil(logger),
		now:          o.now,
	}, nil
}

// Check decides whether a request from key at now is admitted and adds it to the bucket if so.
func (lb *LeakyBucket) Check(key string, now time.Time) Decision {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	state, ok := lb.buckets[key]
	if !ok {
		state = &leakyBucketState{lastLeak: now}
		lb.buckets[key] = state
	}
	*state = lb.leak(*state, now)

	if state.level < lb.config.MaxRequests {
		state.level++
		return lb.decision(*state, now)
	}

	d := lb.decision(*state, now)
	lb.logger.Debug("request rate limited", zap.String("key", key), zap.Int("level", state.level), zap.Duration("retry_after", d.RetryAfter))
	return d
}

// Peek returns the quota key has at now without adding to the bucket.
func (lb *LeakyBucket) Peek(key string, now time.Time) Decision {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	state := leakyBucketState{lastLeak: now}
	if current, ok := lb.buckets[key]; ok {
		state = lb.leak(*current, now)
	}

	return lb.decision(state, now)
}

// leak drains the whole intervals elapsed between state.lastLeak and now.
func (lb *LeakyBucket) leak(state leakyBucketState, now time.Time) leakyBucketState {
	elapsed := now.Sub(state.lastLeak)
	if elapsed < lb.leakInterval {
		return state
	}

	steps := int(elapsed / lb.leakInterval)
	if steps >= state.level {
		return leakyBucketState{lastLeak: now}
	}

	return leakyBucketState{
		level:    state.level - steps,
		lastLeak: state.lastLeak.Add(time.Duration(steps) * lb.leakInterval),
	}
}

// decision describes state at now; Allowed means one more request fits.
func (lb *LeakyBucket) decision(state leakyBucketState, now time.Time) Decision {
	d := Decision{
		Allowed:   state.level < lb.config.MaxRequests,
		Limit:     lb.config.MaxRequests,
		Remaining: lb.config.MaxRequests - state.level,
		ResetAt:   state.lastLeak.Add(time.Duration(state.level) * lb.leakInterval),
	}

	if !d.Allowed {
		d.Remaining = 0
		d.Message = lb.config.Message
		d.RetryAfter = state.lastLeak.Add(lb.leakInterval).Sub(now)
	}
	return d
}

// Allow checks if a request should be allowed under the leaky bucket algorithm.
func (lb *LeakyBucket) Allow(ctx context.Context, key string) (Decision, error) {
	return lb.Check(key, lb.now()), nil
}

// Status reports the current quota of key without consuming it.
func (lb *LeakyBucket) Status(ctx context.Context, key string) (Decision, error) {
	return lb.Peek(key, lb.now()), nil
}

// Reset clears the leaky bucket state for a specific key.
func (lb *LeakyBucket) Reset(ctx context.Context, key string) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	delete(lb.buckets, key)
	return nil
}

// Sweep removes buckets that have drained completely at now.
func (lb *LeakyBucket) Sweep(now time.Time) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	removed := 0
	for key, state := range lb.buckets {
		if lb.leak(*state, now).level == 0 {
			delete(lb.buckets, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps drained buckets every interval until ctx is done.
func (lb *LeakyBucket) StartJanitor(ctx context.Context, interval time.Duration) {
	startJanitor(ctx, interval, lb.now, lb.Sweep)
}

// Len returns the number of tracked keys.
func (lb *LeakyBucket) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.buckets)
}

// Config returns a copy of the limiter configuration.
func (lb *LeakyBucket) Config() LimitConfig {
	return lb.config
}

// Close performs cleanup when the rate limiter is no longer needed.
func (lb *LeakyBucket) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.buckets = make(map[string]*leakyBucketState)
	return nil
}
