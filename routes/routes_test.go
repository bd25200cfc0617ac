package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matanuska/fleetsync/app"
	"github.com/matanuska/fleetsync/config"
	fsmw "github.com/matanuska/fleetsync/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const appCheckSecret = "routes-test-secret"

func newTestRouter(t *testing.T, metrics bool) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Environment: "development",
		StoreDriver: config.StoreDriverMemory,
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			BatchLimit:        500,
			InClauseLimit:     30,
			LookupConcurrency: 2,
			RunBufferSize:     10,
			RunWorkers:        1,
		},
		WebBook:       config.WebBookConfig{Interval: time.Minute, Timeout: time.Second},
		AppCheck:      config.AppCheckConfig{Secret: appCheckSecret, Required: true},
		Alerts:        config.AlertConfig{Timeout: time.Second},
		Diagnostics:   config.DiagnosticsConfig{Timeout: time.Second},
		Observability: config.ObservabilityConfig{LogLevel: "debug", MetricsEnabled: metrics},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return SetupRoutes(deps)
}

func appCheckToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1:1234:web:abcd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(appCheckSecret))
	require.NoError(t, err)
	return token
}

func request(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, false)

	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/readyz", nil, nil).Code)

	w := request(router, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, w.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, request(newTestRouter(t, false), http.MethodGet, "/metrics", nil, nil).Code)

	w := request(newTestRouter(t, true), http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestWebhookRoutes(t *testing.T) {
	router := newTestRouter(t, false)

	w := request(router, http.MethodPost, "/importTripsWebhook", map[string]any{
		"trips": []any{map[string]any{"loadRef": "LR-1"}},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))

	w = request(router, http.MethodPut, "/importDriverBehaviorWebhook", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = request(router, http.MethodGet, "/api/import-runs?collection=trips", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCallableRoutesRequireAppCheck(t *testing.T) {
	router := newTestRouter(t, false)
	payload := map[string]any{"data": map[string]any{"title": "Check tyre pressure"}}

	w := request(router, http.MethodPost, "/callable/createActionItem", payload, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = request(router, http.MethodPost, "/callable/createActionItem", payload,
		map[string]string{fsmw.AppCheckHeader: "not-a-token"})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = request(router, http.MethodPost, "/callable/createActionItem", payload,
		map[string]string{fsmw.AppCheckHeader: appCheckToken(t)})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body["result"]["id"])
}

func TestOperationalRoutes(t *testing.T) {
	router := newTestRouter(t, false)

	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/api/diagnostics/report", nil, nil).Code)
	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/api/webbook/status", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, request(router, http.MethodPost, "/api/webbook/unknown/run", nil, nil).Code)
	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/api/inventory", nil, nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/callable/createDieselRecord", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", fsmw.AppCheckHeader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, strings.ToLower(fsmw.AppCheckHeader), strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")))
}
