package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/middleware"
	"github.com/flagscore/gate/internal/service"
	"github.com/flagscore/gate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConfig(t *testing.T) ServerConfig {
	t.Helper()

	logger := zap.NewNop()
	stats := storage.NewMemoryStatsStore()
	svc, err := service.NewRateLimitService(limiter.Presets(), stats, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return ServerConfig{
		Address:    "127.0.0.1:0",
		RateLimit:  svc,
		Health:     service.NewHealthService(stats, logger),
		Logger:     logger,
		HealthPoll: 10 * time.Millisecond,
	}
}

func get(h http.Handler, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTPServer_TestRateLimitRoute(t *testing.T) {
	h := NewHTTPServer(newTestConfig(t)).Handler()

	for _, want := range []string{"2", "1", "0"} {
		w := get(h, "/api/test-rate-limit", "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Header().Get(limiter.HeaderRemaining))
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.NotEmpty(t, body["message"])
		assert.NotEmpty(t, body["timestamp"])
	}

	w := get(h, "/api/test-rate-limit", "10.0.0.1:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, limiter.TestMessage, body["error"])

	// the strict gate keeps its own counters
	w = get(h, "/api/test-strict", "10.0.0.1:1000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get(limiter.HeaderLimit))
	assert.Equal(t, "4", w.Header().Get(limiter.HeaderRemaining))
}

func TestHTTPServer_ForwardedForUntrusted(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.KeyExtractor = middleware.NewIPKeyExtractor(false)
	h := NewHTTPServer(cfg).Handler()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/test-rate-limit", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("X-Forwarded-For", "203.0.113."+string(rune('1'+i)))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// rotating the header does not buy a fresh quota
	w := get(h, "/api/test-rate-limit", "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHTTPServer_AdminRoutes(t *testing.T) {
	h := NewAdminHTTPServer(newTestConfig(t)).Handler()

	req := httptest.NewRequest(http.MethodPost, "/ratelimit/check", strings.NewReader(`{"gate":"strict","key":"svc-1"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, get(h, "/ratelimit/status/strict/svc-1", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/ratelimit/gates", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/ratelimit/stats", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)

	req = httptest.NewRequest(http.MethodDelete, "/ratelimit/reset/strict/svc-1", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, get(h, "/ratelimit/check", "").Code)
}

func TestHTTPServer_Metrics(t *testing.T) {
	cfg := newTestConfig(t)
	public := NewHTTPServer(cfg).Handler()
	admin := NewAdminHTTPServer(cfg).Handler()

	get(public, "/api/test-strict", "10.0.0.9:1")

	w := get(admin, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flagscore_ratelimit_decisions_total")

	assert.Equal(t, http.StatusNotFound, get(public, "/metrics", "").Code)
}

func TestHTTPServer_PublicRouterCannotResetGate(t *testing.T) {
	cfg := newTestConfig(t)
	public := NewHTTPServer(cfg).Handler()
	admin := NewAdminHTTPServer(cfg).Handler()
	const client = "198.51.100.7:4000"

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(public, "/api/test-strict", client).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(public, "/api/test-strict", client).Code)

	req := httptest.NewRequest(http.MethodDelete, "/ratelimit/reset/strict/198.51.100.7", nil)
	req.RemoteAddr = client
	w := httptest.NewRecorder()
	public.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusTooManyRequests, get(public, "/api/test-strict", client).Code)

	// the admin listener shares the gates
	req = httptest.NewRequest(http.MethodDelete, "/ratelimit/reset/strict/198.51.100.7", nil)
	w = httptest.NewRecorder()
	admin.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, get(public, "/api/test-strict", client).Code)
}

func TestHTTPServer_PublicRouterCannotSpendOtherQuota(t *testing.T) {
	public := NewHTTPServer(newTestConfig(t)).Handler()

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/ratelimit/check", strings.NewReader(`{"gate":"strict","key":"203.0.113.50"}`))
		req.RemoteAddr = "192.0.2.99:1"
		w := httptest.NewRecorder()
		public.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	w := get(public, "/api/test-strict", "203.0.113.50:1234")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", w.Header().Get(limiter.HeaderRemaining))
}

func TestHTTPServer_DefaultIgnoresForwardedFor(t *testing.T) {
	public := NewHTTPServer(newTestConfig(t)).Handler()

	codes := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/test-strict", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		public.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	ok := http.StatusOK
	limited := http.StatusTooManyRequests
	assert.Equal(t, []int{ok, ok, ok, ok, ok, limited, limited, limited}, codes)
}

func TestHTTPServer_StartStop(t *testing.T) {
	hs := NewHTTPServer(newTestConfig(t))
	require.NoError(t, hs.Start(context.Background()))

	resp, err := http.Get("http://" + hs.Addr() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, hs.Stop(ctx))
}

func TestAdminHTTPServer_StartStop(t *testing.T) {
	as := NewAdminHTTPServer(newTestConfig(t))
	require.NoError(t, as.Start(context.Background()))

	resp, err := http.Get("http://" + as.Addr() + "/ratelimit/gates")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, as.Stop(ctx))
}
