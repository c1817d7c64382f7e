package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/storage"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store down")

// testClock is a manually advanced clock shared by the service and its gates
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStatsStore rejects every call
type failingStatsStore struct{}

func (failingStatsStore) Record(context.Context, storage.Event) error { return errStoreDown }
func (failingStatsStore) Snapshot(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, errStoreDown
}
func (failingStatsStore) Ping(context.Context) error { return errStoreDown }
func (failingStatsStore) Close() error               { return nil }

// setupTest creates a service over the built-in presets with a manual clock
func setupTest(t *testing.T, stats storage.StatsStore) (*RateLimitService, *testClock) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	t.Cleanup(func() { _ = logger.Sync() })

	clock := newTestClock()
	svc, err := NewRateLimitService(limiter.Presets(), stats, logger, limiter.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	svc.now = clock.Now
	t.Cleanup(func() { _ = svc.Close() })

	return svc, clock
}
