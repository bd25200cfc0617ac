package models

// DieselRecord is a single fuel fill-up captured from the fleet app
type DieselRecord struct {
	FleetNumber  string  `json:"fleetNumber" validate:"required"`
	Date         string  `json:"date" validate:"required"`
	DriverName   string  `json:"driverName"`
	KmReading    float64 `json:"kmReading" validate:"gte=0"`
	LitresFilled float64 `json:"litresFilled" validate:"gt=0"`
	TotalCost    float64 `json:"totalCost" validate:"gte=0"`
	FuelStation  string  `json:"fuelStation"`
	Currency     string  `json:"currency" validate:"omitempty,oneof=ZAR USD"`
	TripID       string  `json:"tripId"`
	Notes        string  `json:"notes"`
}

// Fields converts the record into storable document fields
func (d *DieselRecord) Fields() map[string]any {
	currency := d.Currency
	if currency == "" {
		currency = "ZAR"
	}
	return map[string]any{
		"fleetNumber":  d.FleetNumber,
		"date":         d.Date,
		"driverName":   d.DriverName,
		"kmReading":    d.KmReading,
		"litresFilled": d.LitresFilled,
		"totalCost":    d.TotalCost,
		"fuelStation":  d.FuelStation,
		"currency":     currency,
		"tripId":       d.TripID,
		"notes":        d.Notes,
	}
}

// ActionItem is a follow-up task raised against a trip or vehicle
type ActionItem struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      string `json:"status" validate:"omitempty,oneof=open in_progress completed"`
	RelatedID   string `json:"relatedId"`
}

// Fields converts the item into storable document fields
func (a *ActionItem) Fields() map[string]any {
	priority := a.Priority
	if priority == "" {
		priority = "medium"
	}
	status := a.Status
	if status == "" {
		status = "open"
	}
	return map[string]any{
		"title":       a.Title,
		"description": a.Description,
		"assignedTo":  a.AssignedTo,
		"dueDate":     a.DueDate,
		"priority":    priority,
		"status":      status,
		"relatedId":   a.RelatedID,
	}
}

// SystemCostRates holds the per-currency cost rates used for trip costing.
// There is one document per currency.
type SystemCostRates struct {
	Currency          string  `json:"currency" validate:"required,oneof=ZAR USD"`
	PerKmCost         float64 `json:"perKmCost" validate:"gte=0"`
	PerDayCost        float64 `json:"perDayCost" validate:"gte=0"`
	DriverAllowance   float64 `json:"driverAllowance" validate:"gte=0"`
	FuelPricePerLitre float64 `json:"fuelPricePerLitre" validate:"gte=0"`
	EffectiveDate     string  `json:"effectiveDate"`
	UpdatedBy         string  `json:"updatedBy"`
}

// Fields converts the rates into storable document fields
func (s *SystemCostRates) Fields() map[string]any {
	return map[string]any{
		"currency":          s.Currency,
		"perKmCost":         s.PerKmCost,
		"perDayCost":        s.PerDayCost,
		"driverAllowance":   s.DriverAllowance,
		"fuelPricePerLitre": s.FuelPricePerLitre,
		"effectiveDate":     s.EffectiveDate,
		"updatedBy":         s.UpdatedBy,
	}
}
