package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories/memory"
	"github.com/matanuska/fleetsync/services/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRecordsRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	h := NewRecordsHandler(records.NewService(store.Repositories().Documents, zap.NewNop()), zap.NewNop())

	r := chi.NewRouter()
	r.Post("/callable/createDieselRecord", h.HandleCreateDiesel)
	r.Post("/callable/createActionItem", h.HandleCreateActionItem)
	r.Post("/callable/upsertSystemCostRates", h.HandleUpsertCostRates)
	r.Post("/telematicsTripUpdateWebhook", h.HandleTelematics)
	r.Route("/api/inventory", func(r chi.Router) {
		r.Get("/", h.HandleListInventory)
		r.Get("/{id}", h.HandleGetInventory)
		r.Put("/{id}", h.HandleUpdateInventory)
		r.Delete("/{id}", h.HandleDeleteInventory)
	})
	return r, store
}

func do(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCallableCreates(t *testing.T) {
	t.Run("diesel record", func(t *testing.T) {
		router, store := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/callable/createDieselRecord", map[string]any{
			"data": map[string]any{"fleetNumber": "21H", "date": "2024-05-01", "litresFilled": 350.5, "totalCost": 7000},
		})
		require.Equal(t, http.StatusOK, w.Code)

		id := decodeBody(t, w)["result"].(map[string]any)["id"].(string)
		doc, err := store.Get(context.Background(), models.CollectionDiesel, id)
		require.NoError(t, err)
		assert.Equal(t, "ZAR", doc.Fields["currency"])
	})

	t.Run("invalid diesel record", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/callable/createDieselRecord", map[string]any{
			"data": map[string]any{"fleetNumber": "21H"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CallableInvalidArgument, decodeBody(t, w)["error"].(map[string]any)["status"])
	})

	t.Run("action item", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/callable/createActionItem", map[string]any{
			"data": map[string]any{"title": "Replace mirror"},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, decodeBody(t, w)["result"].(map[string]any)["id"])
	})

	t.Run("cost rates are keyed by currency", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/callable/upsertSystemCostRates", map[string]any{
			"data": map[string]any{"currency": "USD", "perKmCost": 1.2},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "USD", decodeBody(t, w)["result"].(map[string]any)["id"])
	})

	t.Run("malformed envelope", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/callable/createActionItem", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInventoryREST(t *testing.T) {
	router, store := newRecordsRouter(t)
	store.Seed(
		models.NewDocument(models.CollectionInventory, "inv-1", "", map[string]any{"tyreId": "T-1", "quantity": 4.0}, models.SourceCSV),
		models.NewDocument(models.CollectionInventory, "inv-2", "", map[string]any{"tyreId": "T-2", "quantity": 2.0}, models.SourceCSV),
	)

	t.Run("list", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/inventory?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody(t, w)["data"], 2)
	})

	t.Run("list rejects a bad limit", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/inventory?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/inventory/inv-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		assert.Equal(t, "inv-1", data["id"])
		assert.Equal(t, "T-1", data["tyreId"])
	})

	t.Run("get unknown", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/inventory/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update ignores protected fields", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/inventory/inv-2", map[string]any{"quantity": 6, "id": "other"})
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		assert.Equal(t, "inv-2", data["id"])
		assert.Equal(t, float64(6), data["quantity"])
	})

	t.Run("update with nothing to change", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/inventory/inv-2", map[string]any{"createdAt": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := do(router, http.MethodDelete, "/api/inventory/inv-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["success"])

		w = do(router, http.MethodDelete, "/api/inventory/inv-1", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTelematicsWebhook(t *testing.T) {
	t.Run("trip started", func(t *testing.T) {
		router, store := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/telematicsTripUpdateWebhook", map[string]any{
			"tripId":    "LR-1",
			"status":    "trip_started",
			"timestamp": "2024-05-01T06:00:00Z",
			"driverId":  "D-7",
			"vehicleId": "21H",
			"location":  map[string]any{"lat": -17.8, "lng": 31.0},
		})
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "Trip LR-1 updated with status: trip_started", body["message"])
		assert.NotEmpty(t, body["timestamp"])

		doc, err := store.Get(context.Background(), models.CollectionTrips, "LR-1")
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusActive, doc.Fields["status"])
	})

	t.Run("missing fields", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/telematicsTripUpdateWebhook", map[string]any{"tripId": "LR-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing required fields: tripId and status", decodeBody(t, w)["message"])
	})

	t.Run("trip ended needs an end location", func(t *testing.T) {
		router, _ := newRecordsRouter(t)

		w := do(router, http.MethodPost, "/telematicsTripUpdateWebhook", map[string]any{"tripId": "LR-1", "status": "trip_ended"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing required field endLocation for trip_ended status", decodeBody(t, w)["message"])
	})
}
