package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T, window time.Duration, max int) *SlidingWindow {
	sw, err := NewSlidingWindow(LimitConfig{Window: window, MaxRequests: max, Message: "slow down"}, newTestLogger(t))
	require.NoError(t, err)
	return sw
}

func TestNewSlidingWindow_InvalidConfig(t *testing.T) {
	_, err := NewSlidingWindow(LimitConfig{MaxRequests: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSlidingWindowCheck_Burst(t *testing.T) {
	sw := newTestLog(t, 10*time.Second, 3)

	for i, want := range []int{2, 1, 0} {
		d := sw.Check("k", at(i))
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, want, d.Remaining)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, at(i).Add(10*time.Second), d.ResetAt)
	}

	denied := sw.Check("k", at(3))
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.Equal(t, "slow down", denied.Message)
	// the oldest entry, at 0ms, expires at 10s
	assert.Equal(t, 10*time.Second-3*time.Millisecond, denied.RetryAfter)
	assert.Equal(t, 3, len(sw.logs["k"]))
}

func TestSlidingWindowCheck_SameInstant(t *testing.T) {
	sw := newTestLog(t, time.Second, 2)

	assert.True(t, sw.Check("k", at(0)).Allowed)
	assert.True(t, sw.Check("k", at(0)).Allowed)
	assert.False(t, sw.Check("k", at(0)).Allowed)
}

func TestSlidingWindowCheck_NoBoundaryBurst(t *testing.T) {
	sw := newTestLog(t, time.Second, 2)

	assert.True(t, sw.Check("k", at(990)).Allowed)
	assert.True(t, sw.Check("k", at(995)).Allowed)
	// a fixed window anchored at 0 would admit these
	assert.False(t, sw.Check("k", at(1000)).Allowed)
	assert.False(t, sw.Check("k", at(1010)).Allowed)

	// one slot frees exactly one window after the oldest entry
	d := sw.Check("k", at(1990))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.False(t, sw.Check("k", at(1994)).Allowed)
}

func TestSlidingWindowCheck_KeysIsolated(t *testing.T) {
	sw := newTestLog(t, time.Minute, 1)

	assert.True(t, sw.Check("a", at(0)).Allowed)
	assert.False(t, sw.Check("a", at(0)).Allowed)
	assert.True(t, sw.Check("b", at(0)).Allowed)
}

func TestSlidingWindowPeekAndReset(t *testing.T) {
	sw := newTestLog(t, time.Minute, 2)
	ctx := context.Background()

	fresh := sw.Peek("k", at(0))
	assert.True(t, fresh.Allowed)
	assert.Equal(t, 2, fresh.Remaining)
	assert.Equal(t, 0, sw.Len())

	sw.Check("k", at(0))
	sw.Check("k", at(0))
	for i := 0; i < 3; i++ {
		assert.False(t, sw.Peek("k", at(1)).Allowed)
	}
	assert.Equal(t, 2, len(sw.logs["k"]))

	require.NoError(t, sw.Reset(ctx, "k"))
	assert.Equal(t, 2, sw.Peek("k", at(1)).Remaining)
}

func TestSlidingWindowSweep(t *testing.T) {
	sw := newTestLog(t, time.Second, 2)

	sw.Check("a", at(0))
	sw.Check("b", at(600))
	require.Equal(t, 2, sw.Len())

	assert.Equal(t, 0, sw.Sweep(at(500)))
	assert.Equal(t, 1, sw.Sweep(at(1000)))
	assert.Equal(t, 1, sw.Len())
	assert.Equal(t, 1, sw.Sweep(at(1600)))
	assert.Equal(t, 0, sw.Len())
}
