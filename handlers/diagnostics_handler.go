package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/diagnostics"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// Prober probes the import webhooks and summarizes the results
type Prober interface {
	CheckAll(ctx context.Context, baseURL string) map[string]diagnostics.Result
	HealthReport() diagnostics.Report
	Log() []diagnostics.Result
}

// DiagnosticsRunRequest optionally picks one of the allowed base URLs
type DiagnosticsRunRequest struct {
	BaseURL string `json:"baseUrl"`
}

// DiagnosticsRunResponse holds the probe results and the refreshed report
type DiagnosticsRunResponse struct {
	Results map[string]diagnostics.Result `json:"results"`
	Report  diagnostics.Report            `json:"report"`
}

// ValidationResponse lists the required fields a payload lacks
type ValidationResponse struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

// DiagnosticsHandler runs connectivity probes against the webhooks
type DiagnosticsHandler struct {
	prober  Prober
	baseURL string
	allowed map[string]struct{}
	logger  *zap.Logger
}

// NewDiagnosticsHandler creates a new DiagnosticsHandler. Runs probe baseURL
// unless the request names one of allowed.
func NewDiagnosticsHandler(prober Prober, baseURL string, allowed []string, logger *zap.Logger) *DiagnosticsHandler {
	h := &DiagnosticsHandler{
		prober:  prober,
		baseURL: normalizeBaseURL(baseURL),
		allowed: make(map[string]struct{}, len(allowed)+1),
		logger:  logger,
	}
	h.allowed[h.baseURL] = struct{}{}
	for _, u := range allowed {
		h.allowed[normalizeBaseURL(u)] = struct{}{}
	}
	return h
}

// HandleReport handles GET /api/diagnostics/report
func (h *DiagnosticsHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.prober.HealthReport())
}

// HandleLog handles GET /api/diagnostics/log
func (h *DiagnosticsHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.prober.Log())
}

// HandleRun handles POST /api/diagnostics/run
func (h *DiagnosticsHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req DiagnosticsRunRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
	}

	base := h.baseURL
	if override := normalizeBaseURL(req.BaseURL); override != "" {
		if _, ok := h.allowed[override]; !ok {
			h.logger.Warn("diagnostics run refused",
				zap.String("base_url", override))
			HandleServiceError(w, services.Validationf("baseUrl %q is not an allowed diagnostics target", override), h.logger)
			return
		}
		base = override
	}

	results := h.prober.CheckAll(r.Context(), base)
	h.logger.Info("diagnostics run finished",
		zap.String("base_url", base),
		zap.Int("endpoints", len(results)))

	_ = utils.WriteOK(w, DiagnosticsRunResponse{
		Results: results,
		Report:  h.prober.HealthReport(),
	})
}

// HandleValidate handles POST /api/diagnostics/validate
func (h *DiagnosticsHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := utils.DecodeJSON(r, &payload); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	missing := diagnostics.MissingFields(payload)
	if missing == nil {
		missing = []string{}
	}
	_ = utils.WriteOK(w, ValidationResponse{Valid: len(missing) == 0, Missing: missing})
}

func normalizeBaseURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
