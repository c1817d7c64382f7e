package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/service"
	"go.uber.org/zap"
)

// UnknownClientKey is used when the extractor yields no key, so those
// requests share one quota instead of skipping the gate.
const UnknownClientKey = "unknown"

// KeyExtractor derives the client key a request is counted under
type KeyExtractor func(*http.Request) string

// Checker admits or rejects one request on a named gate
type Checker interface {
	CheckLimit(ctx context.Context, req service.CheckRequest) (*service.DecisionResponse, error)
}

// RateLimitMiddleware returns an HTTP middleware that applies the named gate to requests.
//
// The client key is extracted using the provided keyExtractor function.
// Every response carries the X-RateLimit-* headers. If the request is rate
// limited, a 429 Too Many Requests response with a JSON {"error": message}
// body is returned and the wrapped handler is not called.
//
// Example: Rate limit by IP address on the strict gate
//
//	mw := RateLimitMiddleware(svc, limiter.PresetStrict, RemoteAddrKeyExtractor, logger)
func RateLimitMiddleware(checker Checker, gate string, keyExtractor KeyExtractor, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				key = UnknownClientKey
			}

			resp, err := checker.CheckLimit(r.Context(), service.CheckRequest{
				Gate:   gate,
				Key:    key,
				Method: r.Method,
				Path:   r.URL.Path,
			})
			if err != nil {
				logger.Error("rate limiter check failed", zap.String("gate", gate), zap.String("key", key), zap.Error(err))
				// Fail open: allow the request if rate limiter fails
				next.ServeHTTP(w, r)
				return
			}

			limiter.WriteHeaders(w.Header(), resp.Decision)

			if !resp.Allowed {
				logger.Debug("request rate limited",
					zap.String("gate", gate),
					zap.String("key", key),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": resp.Message})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyExtractor extracts the client IP address from the request.
// It uses the first X-Forwarded-For entry when present (for proxied
// requests), then falls back to the host part of RemoteAddr.
func IPKeyExtractor(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return remoteHost(r)
}

// RemoteAddrKeyExtractor ignores forwarding headers and keys on the peer address.
func RemoteAddrKeyExtractor(r *http.Request) string {
	return remoteHost(r)
}

// NewIPKeyExtractor returns IPKeyExtractor when forwarding headers are trusted
// and RemoteAddrKeyExtractor otherwise.
func NewIPKeyExtractor(trustForwardedFor bool) KeyExtractor {
	if trustForwardedFor {
		return IPKeyExtractor
	}
	return RemoteAddrKeyExtractor
}

// UserIDKeyExtractor returns a key extractor that uses a custom header for user identification.
// This is useful for authenticated APIs where you want to rate limit per user instead of IP.
func UserIDKeyExtractor(headerName string, fallback KeyExtractor) KeyExtractor {
	if fallback == nil {
		fallback = RemoteAddrKeyExtractor
	}
	return func(r *http.Request) string {
		if userID := strings.TrimSpace(r.Header.Get(headerName)); userID != "" {
			return "user:" + userID
		}
		return fallback(r)
	}
}

// PathKeyExtractor returns a key extractor that combines the client key with the request path.
// This gives every endpoint its own quota under a shared gate.
func PathKeyExtractor(base KeyExtractor) KeyExtractor {
	if base == nil {
		base = RemoteAddrKeyExtractor
	}
	return func(r *http.Request) string {
		return base(r) + ":" + r.URL.Path
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
