// Package records handles the single-document writes that sit outside the
// import pipeline: callable creates, inventory edits and telematics updates.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/normalize"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// Telematics statuses with extra handling
const (
	TelematicsTripStarted = "trip_started"
	TelematicsTripEnded   = "trip_ended"
)

// DefaultPageSize applies when a list call passes no limit
const DefaultPageSize = 100

// protected fields are owned by the store and never taken from a request
var protected = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
}

// Service performs record CRUD against the document store
type Service struct {
	docs   repositories.DocumentRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a records service
func NewService(docs repositories.DocumentRepository, logger *zap.Logger) *Service {
	return &Service{
		docs:   docs,
		now:    time.Now,
		logger: logger,
	}
}

// CreateDiesel stores a new diesel record and returns its id
func (s *Service) CreateDiesel(ctx context.Context, rec *models.DieselRecord) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}
	return s.create(ctx, models.CollectionDiesel, rec.Fields())
}

// CreateActionItem stores a new action item and returns its id
func (s *Service) CreateActionItem(ctx context.Context, item *models.ActionItem) (string, error) {
	if err := validate(item); err != nil {
		return "", err
	}
	return s.create(ctx, models.CollectionActionItems, item.Fields())
}

// UpsertCostRates merges the rates into the document for their currency
func (s *Service) UpsertCostRates(ctx context.Context, rates *models.SystemCostRates) (string, error) {
	if err := validate(rates); err != nil {
		return "", err
	}
	doc := models.NewDocument(models.CollectionSystemCostRates, rates.Currency, "", rates.Fields(), models.SourceCallable)
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return "", services.ErrStore.Wrapf(err, "failed to save cost rates")
	}
	s.logger.Info("system cost rates saved", zap.String("currency", rates.Currency))
	return doc.ID, nil
}

func (s *Service) create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	doc := models.NewDocument(collection, id, "", fields, models.SourceCallable)
	if _, err := s.docs.InsertBatch(ctx, []*models.Document{doc}); err != nil {
		return "", services.ErrStore.Wrapf(err, "failed to create %s record", collection)
	}
	s.logger.Info("record created", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

// ListInventory returns a page of inventory items, newest first
func (s *Service) ListInventory(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	docs, err := s.docs.List(ctx, models.CollectionInventory, limit, offset)
	if err != nil {
		return nil, services.ErrStore.Wrapf(err, "failed to list inventory")
	}
	return docs, nil
}

// GetInventory returns one inventory item
func (s *Service) GetInventory(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, models.CollectionInventory, id)
	if err != nil {
		return nil, storeError(err, "inventory item %q not found", id)
	}
	return doc, nil
}

// UpdateInventory merges fields into an inventory item
func (s *Service) UpdateInventory(ctx context.Context, id string, fields map[string]any) (*models.Document, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if !protected[k] {
			clean[k] = v
		}
	}
	if len(clean) == 0 {
		return nil, services.Validationf("no updatable fields supplied")
	}
	doc, err := s.docs.Update(ctx, models.CollectionInventory, id, clean)
	if err != nil {
		return nil, storeError(err, "inventory item %q not found", id)
	}
	s.logger.Info("inventory item updated", zap.String("id", id), zap.Int("fields", len(clean)))
	return doc, nil
}

// DeleteInventory removes an inventory item
func (s *Service) DeleteInventory(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, models.CollectionInventory, id); err != nil {
		return storeError(err, "inventory item %q not found", id)
	}
	s.logger.Info("inventory item deleted", zap.String("id", id))
	return nil
}

// ApplyTelematics merges a tracking update into the trip document and
// returns the confirmation message.
func (s *Service) ApplyTelematics(ctx context.Context, u *models.TelematicsUpdate) (string, error) {
	if strings.TrimSpace(u.TripID) == "" || strings.TrimSpace(u.Status) == "" {
		return "", services.Validationf("Missing required fields: tripId and status")
	}

	at := normalize.Date(s.now())
	if u.Timestamp != "" {
		at = normalize.Date(u.Timestamp)
	}

	fields := map[string]any{}
	switch u.Status {
	case TelematicsTripStarted:
		if u.DriverID == "" || u.VehicleID == "" || u.Location == nil {
			return "", services.Validationf("Missing required fields for trip_started status")
		}
		fields["startedAt"] = at
		fields["driverId"] = u.DriverID
		fields["vehicleId"] = u.VehicleID
		fields["startLocation"] = u.Location
		fields["shippedStatus"] = true
		fields["shippedDate"] = at
		fields["status"] = models.TripStatusActive
	case TelematicsTripEnded:
		if u.EndLocation == nil {
			return "", services.Validationf("Missing required field endLocation for trip_ended status")
		}
		fields["endedAt"] = at
		fields["endLocation"] = u.EndLocation
		fields["deliveredStatus"] = true
		fields["deliveredDate"] = at
		fields["status"] = models.TripStatusCompleted
	default:
		fields["lastUpdated"] = at
	}

	doc := models.NewDocument(models.CollectionTrips, u.TripID, "", fields, models.SourceWebhook)
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return "", services.ErrStore.Wrapf(err, "failed to update trip")
	}

	s.logger.Info("telematics update applied",
		zap.String("trip_id", u.TripID),
		zap.String("status", u.Status))
	return fmt.Sprintf("Trip %s updated with status: %s", u.TripID, u.Status), nil
}

func validate(v any) error {
	err := utils.ValidateStruct(v)
	if err == nil {
		return nil
	}
	derr := services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	for field, msg := range utils.GetValidationFields(err) {
		derr.WithDetail(field, msg)
	}
	return derr
}

func storeError(err error, format string, args ...any) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrDocumentNotFound.Wrapf(err, format, args...)
	}
	return services.ErrStore.Wrap(err)
}
