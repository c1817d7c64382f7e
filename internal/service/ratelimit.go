package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/metrics"
	"github.com/flagscore/gate/internal/storage"
	"go.uber.org/zap"
)

// CheckRequest identifies the gate and client of a request being admitted
type CheckRequest struct {
	Gate   string `json:"gate"`
	Key    string `json:"key"`
	Method string `json:"-"`
	Path   string `json:"-"`
}

// DecisionResponse is the transport-neutral view of a limiter decision
type DecisionResponse struct {
	Gate       string `json:"gate"`
	Key        string `json:"key"`
	Allowed    bool   `json:"allowed"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetAt    int64  `json:"reset_at"`    // Unix timestamp
	RetryAfter int    `json:"retry_after"` // seconds, 0 when allowed
	Message    string `json:"message,omitempty"`

	Decision limiter.Decision `json:"-"`
}

// Headers returns the rate limit headers for the response
func (r *DecisionResponse) Headers() map[string]string {
	return limiter.Headers(r.Decision)
}

// GateInfo describes a configured gate
type GateInfo struct {
	Name           string `json:"name"`
	Algorithm      string `json:"algorithm"`
	WindowMs       int64  `json:"window_ms"`
	MaxRequests    int    `json:"max_requests"`
	Message        string `json:"message"`
	TrackedClients int    `json:"tracked_clients"`
}

// RateLimitService provides business logic for rate limiting.
// The set of gates is fixed at construction.
type RateLimitService struct {
	gates  map[string]limiter.Limiter
	stats  storage.StatsStore
	now    func() time.Time
	Logger *zap.Logger
}

// NewRateLimitService builds one limiter per entry of presets.
func NewRateLimitService(presets map[string]limiter.LimitConfig, stats storage.StatsStore, logger *zap.Logger, opts ...limiter.Option) (*RateLimitService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = storage.NewMemoryStatsStore()
	}

	gates := make(map[string]limiter.Limiter, len(presets))
	for name, cfg := range presets {
		lim, err := limiter.New(cfg, logger.With(zap.String("gate", name)), opts...)
		if err != nil {
			return nil, fmt.Errorf("gate %s: %w", name, err)
		}
		gates[name] = lim
	}

	return &RateLimitService{
		gates:  gates,
		stats:  stats,
		now:    time.Now,
		Logger: logger,
	}, nil
}

// CheckLimit consumes one request from the client's quota on the named gate
func (s *RateLimitService) CheckLimit(ctx context.Context, req CheckRequest) (*DecisionResponse, error) {
	lim, err := s.lookup(req.Gate, req.Key)
	if err != nil {
		return nil, err
	}

	decision, err := lim.Allow(ctx, req.Key)
	if err != nil {
		// Fail open on error
		s.Logger.Error("rate limiter check failed", zap.String("gate", req.Gate), zap.String("key", req.Key), zap.Error(err))
		decision = limiter.Decision{Allowed: true, Limit: lim.Config().MaxRequests, Remaining: lim.Config().MaxRequests}
	}

	metrics.ObserveDecision(req.Gate, decision.Allowed)
	metrics.GateTrackedClients.WithLabelValues(req.Gate).Set(float64(lim.Len()))
	s.record(ctx, req, decision.Allowed)

	return newDecisionResponse(req.Gate, req.Key, decision), nil
}

// GetStatus reports the client's quota on the named gate without consuming it
func (s *RateLimitService) GetStatus(ctx context.Context, gate, key string) (*DecisionResponse, error) {
	lim, err := s.lookup(gate, key)
	if err != nil {
		return nil, err
	}

	decision, err := lim.Status(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("status of %s on gate %s: %w", key, gate, err)
	}

	return newDecisionResponse(gate, key, decision), nil
}

// ResetLimit clears the client's state on the named gate
func (s *RateLimitService) ResetLimit(ctx context.Context, gate, key string) error {
	lim, err := s.lookup(gate, key)
	if err != nil {
		return err
	}

	if err := lim.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset %s on gate %s: %w", key, gate, err)
	}

	metrics.GateResets.WithLabelValues(gate).Inc()
	metrics.GateTrackedClients.WithLabelValues(gate).Set(float64(lim.Len()))
	s.Logger.Info("rate limit reset", zap.String("gate", gate), zap.String("key", key))

	return nil
}

// Gates lists the configured gates sorted by name
func (s *RateLimitService) Gates() []GateInfo {
	names := make([]string, 0, len(s.gates))
	for name := range s.gates {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]GateInfo, 0, len(names))
	for _, name := range names {
		lim := s.gates[name]
		cfg := lim.Config()
		infos = append(infos, GateInfo{
			Name:           name,
			Algorithm:      cfg.Algorithm,
			WindowMs:       cfg.Window.Milliseconds(),
			MaxRequests:    cfg.MaxRequests,
			Message:        cfg.Message,
			TrackedClients: lim.Len(),
		})
	}
	return infos
}

// HasGate reports whether name is configured
func (s *RateLimitService) HasGate(name string) bool {
	_, ok := s.gates[name]
	return ok
}

// Stats returns the recorded decision counters
func (s *RateLimitService) Stats(ctx context.Context) (storage.Snapshot, error) {
	snap, err := s.stats.Snapshot(ctx)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("read stats: %w", err)
	}
	return snap, nil
}

// Sweep removes expired client entries from every gate and returns the total removed
func (s *RateLimitService) Sweep(now time.Time) int {
	total := 0
	for name, lim := range s.gates {
		removed := lim.Sweep(now)
		if removed > 0 {
			metrics.GateSweptEntries.WithLabelValues(name).Add(float64(removed))
		}
		metrics.GateTrackedClients.WithLabelValues(name).Set(float64(lim.Len()))
		total += removed
	}
	return total
}

// StartJanitor sweeps every gate each interval until ctx is done
func (s *RateLimitService) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.Logger.Warn("rate limit janitor disabled", zap.Duration("interval", interval))
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(s.now()); removed > 0 {
					s.Logger.Debug("rate limit janitor swept entries", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Close releases every gate
func (s *RateLimitService) Close() error {
	for name, lim := range s.gates {
		if err := lim.Close(); err != nil {
			s.Logger.Warn("failed to close gate", zap.String("gate", name), zap.Error(err))
		}
	}
	return nil
}

func (s *RateLimitService) lookup(gate, key string) (limiter.Limiter, error) {
	if gate == "" {
		return nil, ErrGateRequired
	}
	if key == "" {
		return nil, ErrKeyRequired
	}

	lim, ok := s.gates[gate]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGateNotFound, gate)
	}
	return lim, nil
}

// record writes the decision to the stats store; failures never reach the caller
func (s *RateLimitService) record(ctx context.Context, req CheckRequest, allowed bool) {
	ev := storage.Event{
		Gate:    req.Gate,
		Key:     req.Key,
		Allowed: allowed,
		Method:  req.Method,
		Path:    req.Path,
		At:      s.now(),
	}

	if err := s.stats.Record(ctx, ev); err != nil {
		metrics.StatsRecordFailures.Inc()
		s.Logger.Warn("failed to record rate limit decision", zap.String("gate", req.Gate), zap.Error(err))
	}
}

func newDecisionResponse(gate, key string, d limiter.Decision) *DecisionResponse {
	resp := &DecisionResponse{
		Gate:      gate,
		Key:       key,
		Allowed:   d.Allowed,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		ResetAt:   limiter.ResetUnix(d),
		Message:   d.Message,
		Decision:  d,
	}
	if !d.Allowed {
		resp.RetryAfter = limiter.RetryAfterSeconds(d)
	}
	return resp
}
