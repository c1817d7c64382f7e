package limiter

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenBucket implements the Token Bucket rate limiting algorithm.
//
// How it works:
// 1. Each key owns a bucket holding up to MaxRequests tokens, initially full
// 2. Tokens are refilled continuously at MaxRequests per Window
// 3. Each request consumes 1 token
// 4. If the bucket is empty, the request is rejected
//
// Advantages:
// - No boundary bursts: at most MaxRequests in any span shorter than one refill
// - Smooth rate limiting with predictable behavior
//
// Disadvantages:
// - Remaining quota is fractional internally and rounded down for clients
// - Reset time is when the bucket is full again, which moves with every request
//
// Buckets are golang.org/x/time/rate limiters driven with explicit timestamps.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	config  LimitConfig
	every   rate.Limit
	logger  *zap.Logger
	now     func() time.Time
}

// NewTokenBucket creates a new Token Bucket rate limiter.
//
// Example: Allow bursts of 10 requests refilled over one minute
//
//	limiter, err := NewTokenBucket(LimitConfig{Window: time.Minute, MaxRequests: 10}, logger)
func NewTokenBucket(cfg LimitConfig, logger *zap.Logger, opts ...Option) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	cfg.Algorithm = AlgorithmTokenBucket

	return &TokenBucket{
		buckets: make(map[string]*rate.Limiter),
		config:  cfg,
		every:   rate.Every(cfg.Window / time.Duration(cfg.MaxRequests)),
		logger:  nopIfNil(logger),
		now:     o.now,
	}, nil
}

// Check decides whether a request from key at now is admitted and consumes a token if so.
func (tb *TokenBucket) Check(key string, now time.Time) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	bucket, ok := tb.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(tb.every, tb.config.MaxRequests)
		tb.buckets[key] = bucket
	}

	allowed := bucket.AllowN(now, 1)
	d := tb.decision(bucket.TokensAt(now), now)
	d.Allowed = allowed

	if !allowed {
		d.Message = tb.config.Message
		d.RetryAfter = tb.durationFor(1 - bucket.TokensAt(now))
		tb.logger.Debug("request rate limited", zap.String("key", key), zap.Duration("retry_after", d.RetryAfter))
	}

	return d
}

// Peek returns the quota key has at now without consuming a token.
func (tb *TokenBucket) Peek(key string, now time.Time) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tokens := float64(tb.config.MaxRequests)
	if bucket, ok := tb.buckets[key]; ok {
		tokens = bucket.TokensAt(now)
	}

	d := tb.decision(tokens, now)
	d.Allowed = tokens >= 1
	if !d.Allowed {
		d.Message = tb.config.Message
		d.RetryAfter = tb.durationFor(1 - tokens)
	}
	return d
}

func (tb *TokenBucket) decision(tokens float64, now time.Time) Decision {
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Limit:     tb.config.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(tb.durationFor(float64(tb.config.MaxRequests) - tokens)),
	}
}

// durationFor converts a token deficit into the time needed to refill it.
func (tb *TokenBucket) durationFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(tb.every) * float64(time.Second))
}

// Allow checks if a request should be allowed under the token bucket algorithm.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
	return tb.Check(key, tb.now()), nil
}

// Status reports the current quota of key without consuming it.
func (tb *TokenBucket) Status(ctx context.Context, key string) (Decision, error) {
	return tb.Peek(key, tb.now()), nil
}

// Reset clears the bucket state for a specific key.
func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	delete(tb.buckets, key)
	return nil
}

// Sweep removes buckets that have refilled completely at now; a full bucket
// is indistinguishable from a new one.
func (tb *TokenBucket) Sweep(now time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	removed := 0
	for key, bucket := range tb.buckets {
		if bucket.TokensAt(now) >= float64(tb.config.MaxRequests) {
			delete(tb.buckets, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps full buckets every interval until ctx is done.
func (tb *TokenBucket) StartJanitor(ctx context.Context, interval time.Duration) {
	startJanitor(ctx, interval, tb.now, tb.Sweep)
}

// Len returns the number of tracked keys.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Config returns a copy of the limiter configuration.
func (tb *TokenBucket) Config() LimitConfig {
	return tb.config
}

// Close performs cleanup when the rate limiter is no longer needed.
func (tb *TokenBucket) Close() error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.buckets = make(map[string]*rate.Limiter)
	return nil
}
