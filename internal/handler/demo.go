package handler

import (
	"net/http"
	"time"
)

// DemoHandler serves the routes that exist to exercise the gates
type DemoHandler struct {
	now func() time.Time
}

// NewDemoHandler creates a new demo handler
func NewDemoHandler() *DemoHandler {
	return &DemoHandler{now: time.Now}
}

// TestRateLimit handles GET /api/test-rate-limit
func (h *DemoHandler) TestRateLimit() http.HandlerFunc {
	return h.respond("Requête acceptée")
}

// TestStrict handles GET /api/test-strict
func (h *DemoHandler) TestStrict() http.HandlerFunc {
	return h.respond("Requête acceptée (limite stricte)")
}

func (h *DemoHandler) respond(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message":   message,
			"timestamp": h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}
