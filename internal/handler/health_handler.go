package handler

import (
	"context"
	"net/http"

	"wachannel/internal/service"
)

// HealthChecker reports dependency health
type HealthChecker interface {
	CheckHealth(ctx context.Context) (*service.HealthStatus, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	healthService HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// HandleHealth handles GET requests to the /health endpoint
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	healthStatus, err := h.healthService.CheckHealth(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to perform health check")
		return
	}

	// Determine HTTP status code based on health status
	status := http.StatusInternalServerError
	switch healthStatus.Status {
	case service.StatusHealthy:
		status = http.StatusOK
	case service.StatusDegraded, service.StatusUnhealthy:
		status = http.StatusServiceUnavailable
	}

	_ = WriteJSON(w, status, healthStatus)
}
