package models

// Trip statuses derived from the shipped/delivered flags
const (
	TripStatusActive    = "active"
	TripStatusShipped   = "shipped"
	TripStatusDelivered = "delivered"
	TripStatusCompleted = "completed"
)

// Trip represents a normalized load/trip row. LoadRef is the natural key.
type Trip struct {
	FleetNumber     string  `json:"fleetNumber"`
	DriverName      string  `json:"driverName"`
	ClientType      string  `json:"clientType"`
	ClientName      string  `json:"clientName"`
	LoadRef         string  `json:"loadRef"`
	Route           string  `json:"route"`
	ShippedStatus   bool    `json:"shippedStatus"`
	ShippedDate     string  `json:"shippedDate,omitempty"`
	DeliveredStatus bool    `json:"deliveredStatus"`
	DeliveredDate   string  `json:"deliveredDate,omitempty"`
	BaseRevenue     float64 `json:"baseRevenue"`
	RevenueCurrency string  `json:"revenueCurrency"`
	DistanceKm      float64 `json:"distanceKm"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"paymentStatus"`
}

// DeriveStatus sets Status from the shipped/delivered flags
func (t *Trip) DeriveStatus() {
	switch {
	case t.DeliveredStatus:
		t.Status = TripStatusCompleted
	case t.ShippedStatus:
		t.Status = TripStatusShipped
	default:
		t.Status = TripStatusActive
	}
}

// Fields converts the trip into storable document fields
func (t *Trip) Fields() map[string]any {
	f := map[string]any{
		"fleetNumber":     t.FleetNumber,
		"driverName":      t.DriverName,
		"clientType":      t.ClientType,
		"clientName":      t.ClientName,
		"loadRef":         t.LoadRef,
		"route":           t.Route,
		"shippedStatus":   t.ShippedStatus,
		"deliveredStatus": t.DeliveredStatus,
		"baseRevenue":     t.BaseRevenue,
		"revenueCurrency": t.RevenueCurrency,
		"distanceKm":      t.DistanceKm,
		"status":          t.Status,
		"paymentStatus":   t.PaymentStatus,
		"costs":           []any{},
		"additionalCosts": []any{},
		"followUpHistory": []any{},
	}
	if t.ShippedDate != "" {
		f["shippedDate"] = t.ShippedDate
		f["startDate"] = t.ShippedDate
		if t.ShippedStatus {
			f["shippedAt"] = t.ShippedDate
		}
	}
	if t.DeliveredDate != "" {
		f["deliveredDate"] = t.DeliveredDate
		f["endDate"] = t.DeliveredDate
		if t.DeliveredStatus {
			f["deliveredAt"] = t.DeliveredDate
		}
	}
	return f
}

// TelematicsUpdate is a status change pushed by the vehicle tracking provider
type TelematicsUpdate struct {
	TripID      string `json:"tripId" validate:"required"`
	Status      string `json:"status" validate:"required"`
	Timestamp   string `json:"timestamp"`
	DriverID    string `json:"driverId"`
	VehicleID   string `json:"vehicleId"`
	Location    any    `json:"location"`
	EndLocation any    `json:"endLocation"`
}
