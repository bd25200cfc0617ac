package records

import (
	"context"
	"testing"
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/repositories/memory"
	"github.com/matanuska/fleetsync/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC) }
	return svc, store
}

func TestService_CreateDiesel(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	id, err := svc.CreateDiesel(ctx, &models.DieselRecord{
		FleetNumber:  "21H",
		Date:         "2024-05-01",
		LitresFilled: 310.5,
		TotalCost:    6210,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, models.CollectionDiesel, id)
	require.NoError(t, err)
	assert.Equal(t, "ZAR", doc.Fields["currency"])
	assert.Equal(t, models.SourceCallable, doc.ImportSource)

	_, err = svc.CreateDiesel(ctx, &models.DieselRecord{FleetNumber: "21H"})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	details := services.GetErrorDetails(err)
	assert.Contains(t, details, "date")
	assert.Contains(t, details, "litresFilled")
}

func TestService_CreateActionItem(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	id, err := svc.CreateActionItem(ctx, &models.ActionItem{Title: "Replace tyres on 6H"})
	require.NoError(t, err)

	doc, err := store.Get(ctx, models.CollectionActionItems, id)
	require.NoError(t, err)
	assert.Equal(t, "open", doc.Fields["status"])
	assert.Equal(t, "medium", doc.Fields["priority"])

	_, err = svc.CreateActionItem(ctx, &models.ActionItem{Title: "x", Priority: "urgent"})
	assert.True(t, services.IsValidationError(err))
}

func TestService_UpsertCostRates(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	id, err := svc.UpsertCostRates(ctx, &models.SystemCostRates{Currency: "USD", PerKmCost: 1.2})
	require.NoError(t, err)
	assert.Equal(t, "USD", id)

	_, err = svc.UpsertCostRates(ctx, &models.SystemCostRates{Currency: "USD", PerKmCost: 1.5})
	require.NoError(t, err)

	count, _ := store.Count(ctx, models.CollectionSystemCostRates)
	assert.Equal(t, 1, count)
	doc, _ := store.Get(ctx, models.CollectionSystemCostRates, "USD")
	assert.Equal(t, 1.5, doc.Fields["perKmCost"])

	_, err = svc.UpsertCostRates(ctx, &models.SystemCostRates{Currency: "EUR"})
	assert.True(t, services.IsValidationError(err))
}

func TestService_Inventory(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	store.Seed(models.NewDocument(models.CollectionInventory, "inv-1", "", map[string]any{"tyreId": "T-1", "quantity": 2.0}, models.SourceCSV))

	items, err := svc.ListInventory(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	doc, err := svc.GetInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "T-1", doc.Fields["tyreId"])

	_, err = svc.GetInventory(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrDocumentNotFound)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Equal(t, `inventory item "missing" not found`, services.GetErrorMessage(err))

	updated, err := svc.UpdateInventory(ctx, "inv-1", map[string]any{"quantity": 5.0, "id": "hijack", "createdAt": "x"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.Fields["quantity"])
	assert.Equal(t, "inv-1", updated.ID)
	assert.NotContains(t, updated.Fields, "id")

	_, err = svc.UpdateInventory(ctx, "inv-1", map[string]any{"updatedAt": "x"})
	assert.True(t, services.IsValidationError(err))

	_, err = svc.UpdateInventory(ctx, "missing", map[string]any{"quantity": 1.0})
	assert.True(t, services.IsNotFoundError(err))

	require.NoError(t, svc.DeleteInventory(ctx, "inv-1"))
	assert.True(t, services.IsNotFoundError(svc.DeleteInventory(ctx, "inv-1")))
}

func TestService_ApplyTelematics(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		update  models.TelematicsUpdate
		wantErr string
		check   func(t *testing.T, fields map[string]any)
	}{
		{
			name:    "missing trip id",
			update:  models.TelematicsUpdate{Status: "trip_started"},
			wantErr: "Missing required fields: tripId and status",
		},
		{
			name:    "trip started without vehicle",
			update:  models.TelematicsUpdate{TripID: "LR-1", Status: TelematicsTripStarted, DriverID: "d1", Location: "Harare"},
			wantErr: "Missing required fields for trip_started status",
		},
		{
			name:    "trip ended without end location",
			update:  models.TelematicsUpdate{TripID: "LR-1", Status: TelematicsTripEnded},
			wantErr: "Missing required field endLocation for trip_ended status",
		},
		{
			name: "trip started",
			update: models.TelematicsUpdate{
				TripID: "LR-1", Status: TelematicsTripStarted, Timestamp: "2024-05-01T06:00:00Z",
				DriverID: "d1", VehicleID: "v1", Location: map[string]any{"lat": -17.8, "lng": 31.0},
			},
			check: func(t *testing.T, f map[string]any) {
				assert.Equal(t, true, f["shippedStatus"])
				assert.Equal(t, models.TripStatusActive, f["status"])
				assert.Equal(t, "2024-05-01T06:00:00.000Z", f["startedAt"])
				assert.Equal(t, "Bulawayo", f["route"], "merge keeps existing fields")
			},
		},
		{
			name:   "trip ended",
			update: models.TelematicsUpdate{TripID: "LR-1", Status: TelematicsTripEnded, EndLocation: "Beitbridge"},
			check: func(t *testing.T, f map[string]any) {
				assert.Equal(t, true, f["deliveredStatus"])
				assert.Equal(t, models.TripStatusCompleted, f["status"])
				assert.Equal(t, "2024-05-02T08:30:00.000Z", f["deliveredDate"])
			},
		},
		{
			name:   "other status",
			update: models.TelematicsUpdate{TripID: "LR-2", Status: "position_update", Timestamp: "2024-05-01T07:00:00Z"},
			check: func(t *testing.T, f map[string]any) {
				assert.Equal(t, "2024-05-01T07:00:00.000Z", f["lastUpdated"])
				assert.NotContains(t, f, "status")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			store.Seed(models.NewDocument(models.CollectionTrips, "LR-1", "LR-1", map[string]any{"route": "Bulawayo"}, models.SourceWebhook))

			msg, err := svc.ApplyTelematics(ctx, &tt.update)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, services.IsValidationError(err))
				assert.Equal(t, tt.wantErr, services.GetErrorMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Trip "+tt.update.TripID+" updated with status: "+tt.update.Status, msg)

			doc, err := store.Get(ctx, models.CollectionTrips, tt.update.TripID)
			require.NoError(t, err)
			tt.check(t, doc.Fields)
		})
	}
}
