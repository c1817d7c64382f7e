package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore implements StatsStore using Redis hashes.
//
// Layout, for the default prefix:
//
//	ratelimit:stats:total                 hash allowed/denied, cumulative
//	ratelimit:stats:gates                 set of gate names seen
//	ratelimit:stats:gate:<gate>           hash allowed/denied, cumulative
//	ratelimit:stats:minute:<yyyymmddhhmm> hash allowed/denied, expires after ttl
type RedisStatsStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStatsOption customizes a RedisStatsStore
type RedisStatsOption func(*RedisStatsStore)

// WithStatsPrefix sets the key prefix
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the expiration of per-minute buckets; zero disables them
func WithStatsTTL(ttl time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = ttl }
}

// NewRedisStatsStore creates a new Redis stats store with an existing client
func NewRedisStatsStore(client *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		client: client,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record counts a decision
func (s *RedisStatsStore) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	f := field(ev.Allowed)

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), f, 1)
	if ev.Gate != "" {
		pipe.SAdd(ctx, s.gatesKey(), ev.Gate)
		pipe.HIncrBy(ctx, s.gateKey(ev.Gate), f, 1)
	}
	if s.ttl > 0 {
		bucket := s.minuteKey(at)
		pipe.HIncrBy(ctx, bucket, f, 1)
		pipe.Expire(ctx, bucket, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Snapshot returns the cumulative counters
func (s *RedisStatsStore) Snapshot(ctx context.Context) (Snapshot, error) {
	gates, err := s.client.SMembers(ctx, s.gatesKey()).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list gates: %w", err)
	}

	pipe := s.client.Pipeline()
	total := pipe.HGetAll(ctx, s.totalKey())
	perGate := make(map[string]*redis.MapStringStringCmd, len(gates))
	for _, gate := range gates {
		perGate[gate] = pipe.HGetAll(ctx, s.gateKey(gate))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Snapshot{}, fmt.Errorf("failed to read stats: %w", err)
	}

	snap := Snapshot{
		Total:  parseCounters(total.Val()),
		ByGate: make(map[string]Counters, len(gates)),
	}
	for gate, cmd := range perGate {
		snap.ByGate[gate] = parseCounters(cmd.Val())
	}

	return snap, nil
}

// Ping checks if the storage is accessible
func (s *RedisStatsStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the storage connection
func (s *RedisStatsStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) totalKey() string {
	return s.prefix + ":total"
}

func (s *RedisStatsStore) gatesKey() string {
	return s.prefix + ":gates"
}

func (s *RedisStatsStore) gateKey(gate string) string {
	return s.prefix + ":gate:" + gate
}

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return s.prefix + ":minute:" + at.UTC().Format("200601021504")
}

func parseCounters(m map[string]string) Counters {
	var c Counters
	c.Allowed, _ = strconv.ParseInt(m["allowed"], 10, 64)
	c.Denied, _ = strconv.ParseInt(m["denied"], 10, 64)
	return c
}
