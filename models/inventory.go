package models

// InventoryItem is one tyre stock line from the workshop inventory export
type InventoryItem struct {
	Location     string  `json:"location"`
	TyreID       string  `json:"tyreId"`
	Description  string  `json:"description"`
	Reference    string  `json:"reference"`
	Quantity     float64 `json:"quantity"`
	Status       string  `json:"status"`
	AxleType     string  `json:"axleType"`
	Size         string  `json:"size"`
	Pattern      string  `json:"pattern"`
	Brand        string  `json:"brand"`
	Position     string  `json:"position"`
	VehicleReg   string  `json:"vehicleReg"`
	UnitCost     float64 `json:"unitCost"`
	HoldingBay   string  `json:"holdingBay"`
	DateAdded    string  `json:"dateAdded"`
	PurchaseDate string  `json:"purchaseDate"`
	Mileage      int     `json:"mileage"`
}

// InventoryColumns is the positional column order of the header-less export.
// Header-keyed CSVs use the same names.
var InventoryColumns = []string{
	"location",
	"tyreId",
	"description",
	"reference",
	"quantity",
	"status",
	"axleType",
	"size",
	"pattern",
	"brand",
	"position",
	"vehicleReg",
	"unitCost",
	"holdingBay",
	"dateAdded",
	"purchaseDate",
	"mileage",
}

// Fields converts the item into storable document fields
func (i *InventoryItem) Fields() map[string]any {
	return map[string]any{
		"location":     i.Location,
		"tyreId":       i.TyreID,
		"description":  i.Description,
		"reference":    i.Reference,
		"quantity":     i.Quantity,
		"status":       i.Status,
		"axleType":     i.AxleType,
		"size":         i.Size,
		"pattern":      i.Pattern,
		"brand":        i.Brand,
		"position":     i.Position,
		"vehicleReg":   i.VehicleReg,
		"unitCost":     i.UnitCost,
		"holdingBay":   i.HoldingBay,
		"dateAdded":    i.DateAdded,
		"purchaseDate": i.PurchaseDate,
		"mileage":      i.Mileage,
	}
}
