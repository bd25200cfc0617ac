package handlers

import (
	"context"
	"net/http"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// RunHistory lists recorded import runs
type RunHistory interface {
	Recent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error)
}

// RunsHandler serves the import run history
type RunsHandler struct {
	runs   RunHistory
	logger *zap.Logger
}

// NewRunsHandler creates a new RunsHandler
func NewRunsHandler(runs RunHistory, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

// HandleList handles GET /api/import-runs?collection=&limit=
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection != "" && !models.IsKnownCollection(collection) {
		HandleServiceError(w, services.Validationf("unknown collection %q", collection), h.logger)
		return
	}

	limit, err := queryInt(r, "limit", defaultRunLimit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if limit == 0 || limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := h.runs.Recent(r.Context(), collection, limit)
	if err != nil {
		HandleServiceError(w, services.ErrStore.Wrapf(err, "failed to list import runs"), h.logger)
		return
	}
	if runs == nil {
		runs = []*models.ImportRun{}
	}
	_ = utils.WriteOK(w, runs)
}
