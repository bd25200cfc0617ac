package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// RecordsService is the single-document CRUD surface
type RecordsService interface {
	CreateDiesel(ctx context.Context, rec *models.DieselRecord) (string, error)
	CreateActionItem(ctx context.Context, item *models.ActionItem) (string, error)
	UpsertCostRates(ctx context.Context, rates *models.SystemCostRates) (string, error)
	ListInventory(ctx context.Context, limit, offset int) ([]*models.Document, error)
	GetInventory(ctx context.Context, id string) (*models.Document, error)
	UpdateInventory(ctx context.Context, id string, fields map[string]any) (*models.Document, error)
	DeleteInventory(ctx context.Context, id string) error
	ApplyTelematics(ctx context.Context, u *models.TelematicsUpdate) (string, error)
}

// CreatedResult is the callable result of a create
type CreatedResult struct {
	ID string `json:"id"`
}

// TelematicsResponse acknowledges a tracking update
type TelematicsResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RecordsHandler handles callable creates, inventory REST and telematics updates
type RecordsHandler struct {
	records RecordsService
	now     func() time.Time
	logger  *zap.Logger
}

// NewRecordsHandler creates a new RecordsHandler
func NewRecordsHandler(records RecordsService, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		now:     time.Now,
		logger:  logger,
	}
}

// HandleCreateDiesel handles the createDieselRecord callable
func (h *RecordsHandler) HandleCreateDiesel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data models.DieselRecord `json:"data"`
	}
	if !h.decodeCallable(w, r, &req) {
		return
	}
	h.writeCreated(w, r, func(ctx context.Context) (string, error) {
		return h.records.CreateDiesel(ctx, &req.Data)
	})
}

// HandleCreateActionItem handles the createActionItem callable
func (h *RecordsHandler) HandleCreateActionItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data models.ActionItem `json:"data"`
	}
	if !h.decodeCallable(w, r, &req) {
		return
	}
	h.writeCreated(w, r, func(ctx context.Context) (string, error) {
		return h.records.CreateActionItem(ctx, &req.Data)
	})
}

// HandleUpsertCostRates handles the upsertSystemCostRates callable
func (h *RecordsHandler) HandleUpsertCostRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data models.SystemCostRates `json:"data"`
	}
	if !h.decodeCallable(w, r, &req) {
		return
	}
	h.writeCreated(w, r, func(ctx context.Context) (string, error) {
		return h.records.UpsertCostRates(ctx, &req.Data)
	})
}

func (h *RecordsHandler) decodeCallable(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		HandleCallableError(w, services.Validationf("%s", err.Error()), h.logger)
		return false
	}
	return true
}

func (h *RecordsHandler) writeCreated(w http.ResponseWriter, r *http.Request, create func(ctx context.Context) (string, error)) {
	id, err := create(r.Context())
	if err != nil {
		HandleCallableError(w, err, h.logger)
		return
	}
	_ = utils.WriteCallableResult(w, CreatedResult{ID: id})
}

// HandleListInventory handles GET /api/inventory
func (h *RecordsHandler) HandleListInventory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	docs, err := h.records.ListInventory(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	items := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.Flatten())
	}
	_ = utils.WriteOK(w, items)
}

// HandleGetInventory handles GET /api/inventory/{id}
func (h *RecordsHandler) HandleGetInventory(w http.ResponseWriter, r *http.Request) {
	doc, err := h.records.GetInventory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, doc.Flatten())
}

// HandleUpdateInventory handles PUT /api/inventory/{id}
func (h *RecordsHandler) HandleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := utils.DecodeJSON(r, &fields); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	doc, err := h.records.UpdateInventory(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, doc.Flatten())
}

// HandleDeleteInventory handles DELETE /api/inventory/{id}
func (h *RecordsHandler) HandleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	if err := h.records.DeleteInventory(r.Context(), chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Inventory item deleted",
	})
}

// HandleTelematics handles /telematicsTripUpdateWebhook
func (h *RecordsHandler) HandleTelematics(w http.ResponseWriter, r *http.Request) {
	var u models.TelematicsUpdate
	if err := utils.DecodeJSON(r, &u); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	msg, err := h.records.ApplyTelematics(r.Context(), &u)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, TelematicsResponse{
		Message:   msg,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, services.Validationf("%s must be a non-negative integer", name)
	}
	return n, nil
}
