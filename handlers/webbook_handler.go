package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matanuska/fleetsync/services/importer"
	"github.com/matanuska/fleetsync/services/webbook"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// JobRunner triggers and reports web book pulls
type JobRunner interface {
	RunOnce(ctx context.Context, name string) (*importer.Summary, error)
	Status() []webbook.JobStatus
}

// WebBookHandler exposes manual web book pulls
type WebBookHandler struct {
	jobs   JobRunner
	logger *zap.Logger
}

// NewWebBookHandler creates a new WebBookHandler
func NewWebBookHandler(jobs JobRunner, logger *zap.Logger) *WebBookHandler {
	return &WebBookHandler{jobs: jobs, logger: logger}
}

// HandleRun handles POST /api/webbook/{job}/run
func (h *WebBookHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	sum, err := h.jobs.RunOnce(r.Context(), name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.logger.Info("manual web book pull finished",
		zap.String("job", name),
		zap.Int("imported", sum.Imported),
		zap.Int("skipped", sum.Skipped))
	_ = utils.WriteOK(w, sum)
}

// HandleStatus handles GET /api/webbook/status
func (h *WebBookHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.jobs.Status())
}
