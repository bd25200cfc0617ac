package models

import (
	"time"
)

// ImportSource tags where a stored record came from
type ImportSource string

const (
	SourceWebBook  ImportSource = "web_book"
	SourceWebhook  ImportSource = "webhook"
	SourceCSV      ImportSource = "csv_import"
	SourceCallable ImportSource = "callable"
	SourceManual   ImportSource = "manual"
)

// Collection names
const (
	CollectionTrips           = "trips"
	CollectionDriverBehavior  = "driverBehavior"
	CollectionInventory       = "inventory"
	CollectionDiesel          = "diesel"
	CollectionActionItems     = "actionItems"
	CollectionSystemCostRates = "systemCostRates"
)

// Collections lists every collection the document store accepts
var Collections = []string{
	CollectionTrips,
	CollectionDriverBehavior,
	CollectionInventory,
	CollectionDiesel,
	CollectionActionItems,
	CollectionSystemCostRates,
}

// IsKnownCollection reports whether name is one of Collections
func IsKnownCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Document is a single stored record. Fields holds scalars and shallow arrays only.
// CreatedAt and UpdatedAt are assigned by the store when the document is committed.
type Document struct {
	Collection   string         `json:"-" db:"collection"`
	ID           string         `json:"id" db:"id"`
	NaturalKey   string         `json:"naturalKey,omitempty" db:"natural_key"`
	Fields       map[string]any `json:"fields" db:"data"`
	ImportSource ImportSource   `json:"importSource,omitempty" db:"import_source"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// NewDocument creates a document that has not been committed yet
func NewDocument(collection, id, naturalKey string, fields map[string]any, source ImportSource) *Document {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Document{
		Collection:   collection,
		ID:           id,
		NaturalKey:   naturalKey,
		Fields:       fields,
		ImportSource: source,
	}
}

// Flatten returns the document as one flat map, the shape API callers see.
func (d *Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Fields)+4)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["id"] = d.ID
	if d.ImportSource != "" {
		out["importSource"] = string(d.ImportSource)
	}
	if !d.CreatedAt.IsZero() {
		out["createdAt"] = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !d.UpdatedAt.IsZero() {
		out["updatedAt"] = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// Clone returns a deep-enough copy: Fields is copied one level down.
func (d *Document) Clone() *Document {
	c := *d
	c.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		c.Fields[k] = v
	}
	return &c
}
