package storage

import (
	"context"
	"time"
)

// Event describes one gate decision.
type Event struct {
	Gate    string
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// Counters holds allowed and denied totals.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Snapshot is a point-in-time view of recorded decisions.
type Snapshot struct {
	Total  Counters            `json:"total"`
	ByGate map[string]Counters `json:"by_gate"`
}

// StatsStore defines the interface for decision statistics backends.
// It never holds limiter state; recording is best effort.
type StatsStore interface {
	// Record counts a decision
	Record(ctx context.Context, ev Event) error

	// Snapshot returns the counters recorded so far
	Snapshot(ctx context.Context) (Snapshot, error)

	// Ping checks if the storage is accessible
	Ping(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}

func field(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}
