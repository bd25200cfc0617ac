package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/matanuska/fleetsync/middleware"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/csvimport"
	"github.com/matanuska/fleetsync/services/importer"
	"github.com/matanuska/fleetsync/services/normalize"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// Importer runs the shared import pipeline
type Importer interface {
	Import(ctx context.Context, spec importer.ImportSpec, rows []any) (*importer.Summary, error)
}

// WebhookResponse is the body returned by the import webhooks.
// ProcessingDetails is the detail list, or a count once it is capped.
type WebhookResponse struct {
	Imported          int      `json:"imported"`
	Skipped           int      `json:"skipped"`
	Message           string   `json:"message"`
	ProcessingDetails any      `json:"processingDetails"`
	ValidationErrors  []string `json:"validationErrors,omitempty"`
	Diagnostic        bool     `json:"diagnostic,omitempty"`
}

// WebBookImportResult is the callable result of importTripsFromWebBook
type WebBookImportResult struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

// CSVImportRequest is the body of an inventory CSV upload
type CSVImportRequest struct {
	CSVData string `json:"csvData"`
	Format  string `json:"format,omitempty"`
}

// CSVImportResponse reports an inventory CSV upload
type CSVImportResponse struct {
	Success       bool             `json:"success"`
	Count         int              `json:"count"`
	Skipped       int              `json:"skipped"`
	Message       string           `json:"message"`
	SampleRecords []map[string]any `json:"sampleRecords"`
}

// ImportHandler adapts HTTP deliveries onto the import pipeline
type ImportHandler struct {
	importer Importer
	now      func() time.Time
	logger   *zap.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(imp Importer, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		importer: imp,
		now:      time.Now,
		logger:   logger,
	}
}

// HandleTripsWebhook handles /importTripsWebhook
func (h *ImportHandler) HandleTripsWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, "trips", importer.TripsWebhookSpec())
}

// HandleDriverBehaviorWebhook handles /importDriverBehaviorWebhook
func (h *ImportHandler) HandleDriverBehaviorWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, "events", importer.DriverBehaviorWebhookSpec(h.now))
}

func (h *ImportHandler) handleWebhook(w http.ResponseWriter, r *http.Request, key string, spec importer.ImportSpec) {
	switch r.Method {
	case http.MethodOptions:
		utils.WriteNoContent(w)
		return
	case http.MethodPost:
	default:
		HandleServiceError(w, services.ErrMethodNotAllowed, h.logger)
		return
	}

	var body any
	if err := utils.DecodeJSON(r, &body); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	rows, diagnostic, err := extractRows(body, key)
	if err != nil {
		h.logger.Warn("rejected webhook payload",
			zap.String("collection", spec.Collection),
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	spec = h.decorate(r, spec)
	spec.Diagnostic = spec.Diagnostic || diagnostic

	sum, err := h.importer.Import(r.Context(), spec, rows)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, webhookResponse(sum, key))
}

// HandleTripsFromWebBook handles the importTripsFromWebBook callable
func (h *ImportHandler) HandleTripsFromWebBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data any `json:"data"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleCallableError(w, services.Validationf("%s", err.Error()), h.logger)
		return
	}

	rows, diagnostic, err := extractRows(req.Data, "trips")
	if err != nil {
		HandleCallableError(w, err, h.logger)
		return
	}

	spec := h.decorate(r, importer.TripsWebBookSpec(models.TriggerCallable))
	spec.Diagnostic = spec.Diagnostic || diagnostic

	sum, err := h.importer.Import(r.Context(), spec, rows)
	if err != nil {
		HandleCallableError(w, err, h.logger)
		return
	}

	_ = utils.WriteCallableResult(w, WebBookImportResult{
		Imported: sum.Imported,
		Skipped:  sum.Skipped,
		Message:  sum.Message,
	})
}

// HandleInventoryCSV handles POST /api/inventory/import
func (h *ImportHandler) HandleInventoryCSV(w http.ResponseWriter, r *http.Request) {
	var req CSVImportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	format, err := csvimport.ParseFormat(req.Format)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	parsed, err := csvimport.Parse(req.CSVData, format, normalize.InventoryHeaderKeys())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	spec := h.decorate(r, importer.InventoryCSVSpec(h.now()))
	sum, err := h.importer.Import(r.Context(), spec, parsed.Rows)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	samples := sum.Samples
	if samples == nil {
		samples = []map[string]any{}
	}

	h.logger.Info("inventory CSV imported",
		zap.String("format", string(parsed.Format)),
		zap.Int("rows", len(parsed.Rows)),
		zap.Int("imported", sum.Imported))

	_ = utils.WriteOK(w, CSVImportResponse{
		Success:       true,
		Count:         sum.Imported,
		Skipped:       sum.Skipped,
		Message:       fmt.Sprintf("Successfully imported %d inventory items", sum.Imported),
		SampleRecords: samples,
	})
}

// decorate applies the request-scoped source, diagnostic flag and request id
func (h *ImportHandler) decorate(r *http.Request, spec importer.ImportSpec) importer.ImportSpec {
	ctx := r.Context()
	if src := middleware.GetSourceFromContext(ctx); src != "" {
		spec.Source = models.ImportSource(src)
	}
	spec.Diagnostic = middleware.IsDiagnosticRequest(ctx)
	spec.RequestID = middleware.GetRequestIDFromContext(ctx)
	return spec
}

// extractRows accepts a bare array or an object carrying the array under key
func extractRows(body any, key string) ([]any, bool, error) {
	switch v := body.(type) {
	case []any:
		return v, false, nil
	case map[string]any:
		if _, hasName := v["name"]; hasName {
			if _, hasBucket := v["bucket"]; hasBucket {
				if _, hasType := v["contentType"]; hasType {
					return nil, false, services.NewDomainError(services.ErrorTypeValidation,
						fmt.Sprintf("Received Cloud Storage object metadata instead of %s data", key), services.ErrStorageMetadata).
						WithDetail("expected", fmt.Sprintf("a %s array", key)).
						WithDetail("received", "Cloud Storage metadata with bucket, name, and contentType")
				}
			}
		}

		diagnostic := importer.IsDiagnostic(v)
		raw, ok := v[key]
		if !ok {
			if diagnostic {
				return nil, true, nil
			}
			return nil, false, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("Missing %s array in request body", key), services.ErrInvalidPayload).
				WithDetail("expected", map[string]any{key: []any{}})
		}
		rows, ok := raw.([]any)
		if !ok {
			return nil, false, services.Validationf("%s property must be an array", key)
		}
		return rows, diagnostic, nil
	default:
		return nil, false, services.Validationf("request body must be a JSON array or an object with a %s array", key)
	}
}

func webhookResponse(sum *importer.Summary, key string) WebhookResponse {
	resp := WebhookResponse{
		Imported:         sum.Imported,
		Skipped:          sum.Skipped,
		Message:          sum.Message,
		ValidationErrors: sum.Errors,
		Diagnostic:       sum.Diagnostic,
	}
	if sum.DetailCount > importer.MaxDetails {
		resp.ProcessingDetails = fmt.Sprintf("%d %s processed", sum.DetailCount, key)
	} else if sum.Details != nil {
		resp.ProcessingDetails = sum.Details
	} else {
		resp.ProcessingDetails = []importer.Detail{}
	}
	return resp
}
