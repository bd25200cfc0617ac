package importer

import (
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services/dedup"
	"github.com/matanuska/fleetsync/services/normalize"
)

// TripsWebhookSpec keys trips by loadRef as the document id
func TripsWebhookSpec() ImportSpec {
	return ImportSpec{
		Collection: models.CollectionTrips,
		Strategy:   dedup.KeyDocumentID,
		Normalize:  normalize.Trips(normalize.TripWebhookColumns),
		Source:     models.SourceWebhook,
		Trigger:    models.TriggerWebhook,
	}
}

// DriverBehaviorWebhookSpec keys events by their composite key as the document id
func DriverBehaviorWebhookSpec(now func() time.Time) ImportSpec {
	return ImportSpec{
		Collection: models.CollectionDriverBehavior,
		Strategy:   dedup.KeyDocumentID,
		Normalize:  normalize.DriverBehavior(now),
		Source:     models.SourceWebhook,
		Trigger:    models.TriggerWebhook,
	}
}

// TripsWebBookSpec stores auto ids and dedups on the loadRef field.
// trigger is callable for the client path and scheduled for the ticker.
func TripsWebBookSpec(trigger models.ImportTrigger) ImportSpec {
	return ImportSpec{
		Collection: models.CollectionTrips,
		Strategy:   dedup.KeyQuery,
		Normalize:  normalize.WithoutID(normalize.Trips(normalize.TripWebBookColumns)),
		Source:     models.SourceWebBook,
		Trigger:    trigger,
	}
}

// DriverBehaviorWebBookSpec is the web book pull for driver events
func DriverBehaviorWebBookSpec(now func() time.Time, trigger models.ImportTrigger) ImportSpec {
	return ImportSpec{
		Collection: models.CollectionDriverBehavior,
		Strategy:   dedup.KeyQuery,
		Normalize:  normalize.WithoutID(normalize.DriverBehavior(now)),
		Source:     models.SourceWebBook,
		Trigger:    trigger,
	}
}

// InventoryCSVSpec imports tyre rows without deduplication; ids are generated
// from importedAt.
func InventoryCSVSpec(importedAt time.Time) ImportSpec {
	return ImportSpec{
		Collection: models.CollectionInventory,
		Strategy:   dedup.KeyNone,
		Normalize:  normalize.Inventory(importedAt),
		Source:     models.SourceCSV,
		Trigger:    models.TriggerCSV,
	}
}
