package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/zeebo/xxh3"
)

// Record is the normalized form of one row
type Record struct {
	// ID is the storage id when it is known up front, otherwise empty.
	ID string
	// NaturalKey identifies the business entity. Empty for collections without one.
	NaturalKey string
	Fields     map[string]any
	// ImportSource is set only when the row itself names a source.
	ImportSource models.ImportSource
}

// Func normalizes the row at position index
type Func func(row any, index int) (*Record, error)

// RowError marks a row that cannot be imported. It is counted, never fatal.
type RowError struct {
	Index  int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Index, e.Reason)
}

// IsRowError reports whether err is a RowError
func IsRowError(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// keyedRow folds either row shape into a Keyed lookup
func keyedRow(row any, columns []string) (Keyed, bool) {
	switch r := row.(type) {
	case map[string]any:
		return IndexRow(r), true
	case []any:
		return Positional(r, columns), true
	case []string:
		cells := make([]any, len(r))
		for i, c := range r {
			cells[i] = c
		}
		return Positional(cells, columns), true
	default:
		return nil, false
	}
}

func rowSource(k Keyed) models.ImportSource {
	return models.ImportSource(String(k.Get("importSource")))
}

// TripWebhookColumns is the positional layout posted by the trips sheet script.
// Column 8 is an unused spacer in the sheet.
var TripWebhookColumns = []string{
	"fleetNumber", "driverName", "clientType", "clientName", "loadRef", "route",
	"shippedStatus", "shippedDate", "", "deliveredStatus", "deliveredDate",
	"baseRevenue", "revenueCurrency", "distanceKm",
}

// TripWebBookColumns is the positional layout of the web book export
var TripWebBookColumns = []string{
	"fleetNumber", "driverName", "clientType", "clientName", "loadRef", "route",
	"shippedStatus", "shippedDate", "deliveredStatus", "deliveredDate",
	"baseRevenue", "revenueCurrency", "distanceKm",
}

// Trips returns a trip normalizer. Positional rows use columns; keyed rows
// use the same names. The natural key is loadRef, falling back to id.
func Trips(columns []string) Func {
	return func(row any, index int) (*Record, error) {
		k, ok := keyedRow(row, columns)
		if !ok {
			return nil, &RowError{Index: index, Reason: "row is neither an array nor an object"}
		}

		loadRef := strings.TrimSpace(String(k.Get("loadRef", "id")))
		if loadRef == "" {
			return nil, &RowError{Index: index, Reason: "missing loadRef"}
		}

		trip := &models.Trip{
			FleetNumber:     String(k.Get("fleetNumber")),
			DriverName:      String(k.Get("driverName")),
			ClientType:      StringOr(k.Get("clientType"), "external"),
			ClientName:      String(k.Get("clientName")),
			LoadRef:         loadRef,
			Route:           String(k.Get("route")),
			ShippedStatus:   Bool(k.Get("shippedStatus"), "shipped"),
			ShippedDate:     Date(k.Get("shippedDate")),
			DeliveredStatus: Bool(k.Get("deliveredStatus"), "delivered"),
			DeliveredDate:   Date(k.Get("deliveredDate")),
			BaseRevenue:     Float(k.Get("baseRevenue")),
			RevenueCurrency: StringOr(k.Get("revenueCurrency"), "ZAR"),
			DistanceKm:      Float(k.Get("distanceKm")),
			PaymentStatus:   "unpaid",
		}
		trip.DeriveStatus()

		return &Record{
			ID:           loadRef,
			NaturalKey:   loadRef,
			Fields:       trip.Fields(),
			ImportSource: rowSource(k),
		}, nil
	}
}

// DriverBehaviorColumns is the positional layout of the driver behavior sheet
var DriverBehaviorColumns = []string{
	"fleetNumber", "driverName", "eventType", "eventTime", "severity",
	"eventScore", "points", "cameraId", "videoUrl", "notes",
}

// DriverBehavior returns a driver behavior event normalizer. The natural key is
// the composite fleetNumber_eventType_eventTime; events typed UNKNOWN are rejected.
func DriverBehavior(now func() time.Time) Func {
	return func(row any, index int) (*Record, error) {
		k, ok := keyedRow(row, DriverBehaviorColumns)
		if !ok {
			return nil, &RowError{Index: index, Reason: "row is neither an array nor an object"}
		}

		ev := &models.DriverBehaviorEvent{
			FleetNumber: strings.TrimSpace(String(k.Get("fleetNumber"))),
			DriverName:  String(k.Get("driverName")),
			EventType:   strings.TrimSpace(String(k.Get("eventType"))),
			EventTime:   strings.TrimSpace(String(k.Get("eventTime"))),
			CameraID:    String(k.Get("cameraId")),
			VideoURL:    String(k.Get("videoUrl")),
			Severity:    StringOr(k.Get("severity"), "medium"),
			EventScore:  Float(k.Get("eventScore")),
			Notes:       String(k.Get("notes")),
			ReportedAt:  StringOr(k.Get("reportedAt"), now().UTC().Format(isoLayout)),
			ReportedBy:  StringOr(k.Get("reportedBy"), "WebBook Script"),
			Status:      StringOr(k.Get("status"), "pending"),
			Points:      Int(k.Get("points")),
		}

		key := ev.CompositeKey()
		if key == "" {
			return nil, &RowError{Index: index, Reason: "missing required fields: fleetNumber, eventType, eventTime"}
		}
		if strings.EqualFold(ev.EventType, "UNKNOWN") {
			return nil, &RowError{Index: index, Reason: "event type is UNKNOWN"}
		}

		return &Record{
			ID:           key,
			NaturalKey:   key,
			Fields:       ev.Fields(),
			ImportSource: rowSource(k),
		}, nil
	}
}

var inventoryAliases = map[string][]string{
	"location":     {"warehouse"},
	"tyreId":       {"stockCode", "tyreCode", "serialNumber"},
	"description":  {"desc", "tyreDescription"},
	"reference":    {"ref", "invoiceRef"},
	"quantity":     {"qty", "stockQty"},
	"axleType":     {"type", "axle"},
	"vehicleReg":   {"registration", "reg"},
	"unitCost":     {"cost", "unitPrice", "price"},
	"holdingBay":   {"bay"},
	"purchaseDate": {"purchased"},
	"mileage":      {"km", "kms"},
}

// InventoryHeaderKeys lists every folded header name the inventory normalizer recognizes
func InventoryHeaderKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, c := range models.InventoryColumns {
		keys[HeaderKey(c)] = true
		for _, a := range inventoryAliases[c] {
			keys[HeaderKey(a)] = true
		}
	}
	return keys
}

func inventoryGet(k Keyed, column string) any {
	return k.Get(append([]string{column}, inventoryAliases[column]...)...)
}

// Inventory returns a tyre inventory normalizer. Rows carry no natural key;
// each gets an id built from importedAt, the row index and a content hash.
func Inventory(importedAt time.Time) Func {
	return func(row any, index int) (*Record, error) {
		var cells []any
		switch r := row.(type) {
		case []any:
			cells = r
		case []string:
			for _, c := range r {
				cells = append(cells, c)
			}
		}
		if cells != nil {
			if len(cells) < 2 {
				return nil, &RowError{Index: index, Reason: "malformed row: fewer than 2 columns"}
			}
			if blank(cells) {
				return nil, &RowError{Index: index, Reason: "blank row"}
			}
		}

		k, ok := keyedRow(row, models.InventoryColumns)
		if !ok {
			return nil, &RowError{Index: index, Reason: "row is neither an array nor an object"}
		}

		item := &models.InventoryItem{
			Location:     String(inventoryGet(k, "location")),
			TyreID:       String(inventoryGet(k, "tyreId")),
			Description:  String(inventoryGet(k, "description")),
			Reference:    String(inventoryGet(k, "reference")),
			Quantity:     Float(inventoryGet(k, "quantity")),
			Status:       String(inventoryGet(k, "status")),
			AxleType:     String(inventoryGet(k, "axleType")),
			Size:         String(inventoryGet(k, "size")),
			Pattern:      String(inventoryGet(k, "pattern")),
			Brand:        String(inventoryGet(k, "brand")),
			Position:     String(inventoryGet(k, "position")),
			VehicleReg:   String(inventoryGet(k, "vehicleReg")),
			UnitCost:     Float(inventoryGet(k, "unitCost")),
			HoldingBay:   String(inventoryGet(k, "holdingBay")),
			DateAdded:    Date(inventoryGet(k, "dateAdded")),
			PurchaseDate: Date(inventoryGet(k, "purchaseDate")),
			Mileage:      Int(inventoryGet(k, "mileage")),
		}
		if item.TyreID == "" && item.Description == "" {
			return nil, &RowError{Index: index, Reason: "missing tyreId and description"}
		}
		fields := item.Fields()
		if item.DateAdded == "" {
			fields["dateAdded"] = importedAt.UTC().Format(isoLayout)
		}

		id := strings.TrimSpace(String(k.Get("id")))
		if id == "" {
			id = GeneratedID("inv", importedAt, index, fields)
		}

		return &Record{
			ID:     id,
			Fields: fields,
		}, nil
	}
}

// GeneratedID builds a batch-unique id: prefix, millisecond timestamp, row index and
// a short hash of the row content. It is not stable across re-imports.
func GeneratedID(prefix string, at time.Time, index int, fields map[string]any) string {
	var b strings.Builder
	for _, c := range models.InventoryColumns {
		b.WriteString(String(fields[c]))
		b.WriteByte(0x1f)
	}
	sum := fmt.Sprintf("%016x", xxh3.HashString(b.String()))
	return fmt.Sprintf("%s_%d_%d_%s", prefix, at.UnixMilli(), index, sum[:8])
}

func blank(cells []any) bool {
	for _, c := range cells {
		if strings.TrimSpace(String(c)) != "" {
			return false
		}
	}
	return true
}

// WithoutID wraps fn so records carry only their natural key and the store
// assigns the document id.
func WithoutID(fn Func) Func {
	return func(row any, index int) (*Record, error) {
		rec, err := fn(row, index)
		if err != nil {
			return nil, err
		}
		rec.ID = ""
		return rec, nil
	}
}
