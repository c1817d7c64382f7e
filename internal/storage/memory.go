package storage

import (
	"context"
	"sync"
)

// MemoryStatsStore implements StatsStore in process memory.
// Counters are cumulative and never expire.
type MemoryStatsStore struct {
	mu     sync.RWMutex
	total  Counters
	byGate map[string]Counters
}

// NewMemoryStatsStore creates a new in-memory stats store
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byGate: make(map[string]Counters),
	}
}

// Record counts a decision
func (ms *MemoryStatsStore) Record(ctx context.Context, ev Event) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.total.add(ev.Allowed)
	c := ms.byGate[ev.Gate]
	c.add(ev.Allowed)
	ms.byGate[ev.Gate] = c

	return nil
}

// Snapshot returns a copy of the counters
func (ms *MemoryStatsStore) Snapshot(ctx context.Context) (Snapshot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	snap := Snapshot{
		Total:  ms.total,
		ByGate: make(map[string]Counters, len(ms.byGate)),
	}
	for gate, c := range ms.byGate {
		snap.ByGate[gate] = c
	}

	return snap, nil
}

// Ping checks if the storage is accessible
func (ms *MemoryStatsStore) Ping(ctx context.Context) error {
	// In-memory storage is always accessible
	return nil
}

// Close closes the storage connection
func (ms *MemoryStatsStore) Close() error {
	return nil
}
