package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/matanuska/fleetsync/services/audit"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StoreChecker probes the document store
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}

// RecorderStats reports the import run recorder state
type RecorderStats interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store  StoreChecker
	runs   RecorderStats
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. store is nil for the memory store.
func NewHealthHandler(store StoreChecker, runs RecorderStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		runs:   runs,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the store and the run recorder are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.store != nil {
		if err := h.store.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "memory"
	}

	if h.runs != nil {
		if h.runs.GetStats().Started {
			checks["import_runs"] = "healthy"
		} else {
			checks["import_runs"] = "stopped"
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
