package handler

import (
	"net/http"

	"github.com/flagscore/gate/internal/service"
	"go.uber.org/zap"
)

// HealthCheckHandler reports process and stats store health
type HealthCheckHandler struct {
	service *service.HealthService
	logger  *zap.Logger
}

// NewHealthCheckHandler creates a new health check handler
func NewHealthCheckHandler(svc *service.HealthService, logger *zap.Logger) *HealthCheckHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheckHandler{
		service: svc,
		logger:  logger,
	}
}

// HealthCheck returns a health check handler
func (h *HealthCheckHandler) HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, timestamp, err := h.service.GetHealthStatus(r.Context())

		body := map[string]string{
			"status": status,
			"time":   timestamp,
		}

		if err != nil {
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}

		writeJSON(w, http.StatusOK, body)
	}
}
