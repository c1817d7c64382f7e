package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/flagscore/gate/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RateLimitHandler handles rate limit operations
type RateLimitHandler struct {
	service *service.RateLimitService
	logger  *zap.Logger
}

// NewRateLimitHandler creates a new rate limit handler
func NewRateLimitHandler(svc *service.RateLimitService, logger *zap.Logger) *RateLimitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitHandler{
		service: svc,
		logger:  logger,
	}
}

// Check handles POST /ratelimit/check - consume one request on a gate
func (h *RateLimitHandler) Check() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Method = r.Method
		req.Path = r.URL.Path

		resp, err := h.service.CheckLimit(r.Context(), req)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}

		limiter.WriteHeaders(w.Header(), resp.Decision)

		status := http.StatusOK
		if !resp.Allowed {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, resp)
	}
}

// Status handles GET /ratelimit/status/{gate}/{key} - quota left without consuming it
func (h *RateLimitHandler) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		resp, err := h.service.GetStatus(r.Context(), vars["gate"], vars["key"])
		if err != nil {
			h.writeServiceError(w, err)
			return
		}

		limiter.WriteHeaders(w.Header(), resp.Decision)
		writeJSON(w, http.StatusOK, resp)
	}
}

// Reset handles DELETE /ratelimit/reset/{gate}/{key} - forget a client on a gate
func (h *RateLimitHandler) Reset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		gate, key := vars["gate"], vars["key"]

		if err := h.service.ResetLimit(r.Context(), gate, key); err != nil {
			h.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"message": "rate limit reset",
			"gate":    gate,
			"key":     key,
		})
	}
}

// Gates handles GET /ratelimit/gates
func (h *RateLimitHandler) Gates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"gates": h.service.Gates(),
		})
	}
}

// Stats handles GET /ratelimit/stats
func (h *RateLimitHandler) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.service.Stats(r.Context())
		if err != nil {
			h.logger.Error("failed to read stats", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "stats unavailable")
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

// writeServiceError maps service errors onto HTTP status codes
func (h *RateLimitHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("rate limit operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
