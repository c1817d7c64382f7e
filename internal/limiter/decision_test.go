package limiter

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRateLimited(t *testing.T) {
	assert.False(t, IsRateLimited(Decision{Allowed: true}))
	assert.True(t, IsRateLimited(Decision{Allowed: false}))

	gate := newTestGate(t, time.Second, 1)
	for i := 0; i < 3; i++ {
		d := gate.Check("k", at(i))
		assert.Equal(t, !d.Allowed, IsRateLimited(d))
	}
}

func TestHeaders_Allowed(t *testing.T) {
	d := Decision{
		Allowed:   true,
		Limit:     3,
		Remaining: 2,
		ResetAt:   time.Unix(1700000010, 0),
	}

	headers := Headers(d)
	assert.Equal(t, map[string]string{
		"X-RateLimit-Limit":     "3",
		"X-RateLimit-Remaining": "2",
		"X-RateLimit-Reset":     "1700000010",
	}, headers)
}

func TestHeaders_Denied(t *testing.T) {
	d := Decision{
		Allowed:    false,
		Limit:      3,
		Remaining:  0,
		ResetAt:    time.Unix(1700000010, 250*int64(time.Millisecond)),
		RetryAfter: 2500 * time.Millisecond,
		Message:    TestMessage,
	}

	headers := Headers(d)
	assert.Equal(t, "0", headers[HeaderRemaining])
	assert.Equal(t, "1700000011", headers[HeaderReset], "reset rounds up to the next second")
	assert.Equal(t, "3", headers[HeaderRetryAfter])
}

func TestHeaders_RemainingMatchesDecision(t *testing.T) {
	gate := newTestGate(t, time.Minute, 5)
	for i := 0; i < 7; i++ {
		d := gate.Check("k", at(i))
		assert.Equal(t, strconv.Itoa(d.Remaining), Headers(d)[HeaderRemaining])
	}
}

func TestRetryAfterSeconds_Minimum(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(Decision{RetryAfter: 0}))
	assert.Equal(t, 1, RetryAfterSeconds(Decision{RetryAfter: time.Millisecond}))
	assert.Equal(t, 10, RetryAfterSeconds(Decision{RetryAfter: 10 * time.Second}))
}

func TestWriteHeaders(t *testing.T) {
	h := http.Header{}
	WriteHeaders(h, Decision{Allowed: false, Limit: 1, ResetAt: time.Unix(10, 0), RetryAfter: time.Second})

	require.Len(t, h, 4)
	assert.Equal(t, "1", h.Get(HeaderLimit))
	assert.Equal(t, "0", h.Get(HeaderRemaining))
	assert.Equal(t, "10", h.Get(HeaderReset))
	assert.Equal(t, "1", h.Get(HeaderRetryAfter))
}

func TestPresets(t *testing.T) {
	all := Presets()
	assert.Equal(t, []string{PresetLenient, PresetStandard, PresetStrict, PresetTest}, PresetNames(all))

	for name, cfg := range all {
		assert.NoError(t, cfg.Validate(), "preset %s must be valid", name)
	}

	strict, ok := Preset(PresetStrict)
	require.True(t, ok)
	standard, _ := Preset(PresetStandard)
	assert.Less(t, strict.MaxRequests, standard.MaxRequests)

	test, ok := Preset(PresetTest)
	require.True(t, ok)
	assert.Equal(t, LimitConfig{Window: 10 * time.Second, MaxRequests: 3, Message: "Rate limit atteint pour le test"}, test)

	_, ok = Preset("missing")
	assert.False(t, ok)

	// callers cannot mutate the built-in table
	all[PresetStrict] = LimitConfig{}
	strict, _ = Preset(PresetStrict)
	assert.Equal(t, 5, strict.MaxRequests)
}
