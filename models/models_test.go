package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Document tests
func TestIsKnownCollection(t *testing.T) {
	for _, c := range Collections {
		assert.True(t, IsKnownCollection(c), c)
	}
	assert.False(t, IsKnownCollection("users"))
	assert.False(t, IsKnownCollection(""))
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(CollectionTrips, "LR-1", "", nil, SourceWebhook)

	assert.Equal(t, CollectionTrips, doc.Collection)
	assert.Equal(t, "LR-1", doc.ID)
	assert.NotNil(t, doc.Fields)
	assert.True(t, doc.CreatedAt.IsZero())
}

func TestDocument_Flatten(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	doc := NewDocument(CollectionInventory, "inv-1", "", map[string]any{"tyreId": "T-1", "id": "shadowed"}, SourceCSV)
	doc.CreatedAt = ts
	doc.UpdatedAt = ts

	flat := doc.Flatten()
	assert.Equal(t, "inv-1", flat["id"])
	assert.Equal(t, "T-1", flat["tyreId"])
	assert.Equal(t, "csv_import", flat["importSource"])
	assert.Equal(t, "2024-05-01T08:00:00Z", flat["createdAt"])

	t.Run("uncommitted documents have no timestamps", func(t *testing.T) {
		flat := NewDocument(CollectionTrips, "LR-2", "", nil, "").Flatten()
		assert.NotContains(t, flat, "createdAt")
		assert.NotContains(t, flat, "importSource")
	})
}

func TestDocument_Clone(t *testing.T) {
	doc := NewDocument(CollectionTrips, "LR-1", "", map[string]any{"route": "HRE-JHB"}, SourceWebhook)
	c := doc.Clone()
	c.Fields["route"] = "HRE-BYO"

	assert.Equal(t, "HRE-JHB", doc.Fields["route"])
	assert.Equal(t, doc.ID, c.ID)
}

// Trip tests
func TestTrip_DeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		shipped   bool
		delivered bool
		want      string
	}{
		{"new", false, false, TripStatusActive},
		{"shipped", true, false, TripStatusShipped},
		{"delivered", true, true, TripStatusCompleted},
		{"delivered without shipped flag", false, true, TripStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := &Trip{ShippedStatus: tt.shipped, DeliveredStatus: tt.delivered}
			trip.DeriveStatus()
			assert.Equal(t, tt.want, trip.Status)
		})
	}
}

func TestTrip_Fields(t *testing.T) {
	trip := &Trip{
		LoadRef:         "LR-1",
		ShippedStatus:   true,
		ShippedDate:     "2024-05-01",
		DeliveredStatus: false,
		DeliveredDate:   "2024-05-03",
	}
	f := trip.Fields()

	assert.Equal(t, "2024-05-01", f["shippedAt"])
	assert.Equal(t, "2024-05-01", f["startDate"])
	assert.Equal(t, "2024-05-03", f["endDate"])
	assert.NotContains(t, f, "deliveredAt")
	assert.Equal(t, []any{}, f["costs"])
}

// DriverBehaviorEvent tests
func TestDriverBehaviorEvent_CompositeKey(t *testing.T) {
	e := &DriverBehaviorEvent{FleetNumber: "21H", EventType: "HARSH_BRAKING", EventTime: "2024-05-01T08:00:00Z"}
	assert.Equal(t, "21H_HARSH_BRAKING_2024-05-01T08:00:00Z", e.CompositeKey())
	assert.Equal(t, e.CompositeKey(), e.Fields()["eventKey"])

	e.EventTime = ""
	assert.Empty(t, e.CompositeKey())
}

// ImportRun tests
func TestNewImportRun(t *testing.T) {
	run := NewImportRun(CollectionTrips, TriggerWebhook, SourceWebhook)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.False(t, run.StartedAt.IsZero())
	assert.Equal(t, "import_runs", run.TableName())
}

func TestImportRun_BuilderMethods(t *testing.T) {
	run := NewImportRun(CollectionDriverBehavior, TriggerScheduled, SourceWebBook).
		WithCounts(10, 6, 4, 3, 1).
		WithRequest("req-123").
		WithDetails(map[string]any{"job": "driverBehavior"}).
		Finish()

	assert.Equal(t, 10, run.Received)
	assert.Equal(t, 6, run.Imported)
	assert.Equal(t, 3, run.SkippedExisting)
	assert.Equal(t, "req-123", run.RequestID)
	assert.GreaterOrEqual(t, run.DurationMs, int64(0))

	var details map[string]any
	require.NoError(t, json.Unmarshal(run.Details, &details))
	assert.Equal(t, "driverBehavior", details["job"])
}

func TestImportRun_WithError(t *testing.T) {
	run := NewImportRun(CollectionTrips, TriggerCallable, SourceWebBook).WithError(nil)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Nil(t, run.ErrorMessage)

	run.WithError(errors.New("commit failed"))
	assert.Equal(t, RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "commit failed", *run.ErrorMessage)
}
