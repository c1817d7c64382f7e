package limiter

import (
	"net/http"
	"strconv"
	"time"
)

// Header names emitted for every gated response.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Decision is the verdict for a single request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when Allowed
	Message    string        // empty when Allowed
}

// IsRateLimited reports whether the decision rejects the request.
func IsRateLimited(d Decision) bool {
	return !d.Allowed
}

// Headers returns the informational rate limit headers for d. They are meant
// to be attached whether or not the request was admitted; Retry-After is only
// present on rejections.
func Headers(d Decision) map[string]string {
	headers := map[string]string{
		HeaderLimit:     strconv.Itoa(d.Limit),
		HeaderRemaining: strconv.Itoa(d.Remaining),
		HeaderReset:     strconv.FormatInt(ResetUnix(d), 10),
	}

	if !d.Allowed {
		headers[HeaderRetryAfter] = strconv.Itoa(RetryAfterSeconds(d))
	}

	return headers
}

// WriteHeaders sets the headers returned by Headers on h.
func WriteHeaders(h http.Header, d Decision) {
	for name, value := range Headers(d) {
		h.Set(name, value)
	}
}

// ResetUnix returns d.ResetAt as Unix seconds, rounded up so clients never
// retry before the window has actually rolled over.
func ResetUnix(d Decision) int64 {
	if d.ResetAt.IsZero() {
		return 0
	}
	ms := d.ResetAt.UnixMilli()
	return (ms + 999) / 1000
}

// RetryAfterSeconds returns the whole number of seconds a rejected client
// should wait, never less than 1.
func RetryAfterSeconds(d Decision) int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
