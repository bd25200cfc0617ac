package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportTrigger identifies which adapter drove an import
type ImportTrigger string

const (
	TriggerWebhook   ImportTrigger = "webhook"
	TriggerCallable  ImportTrigger = "callable"
	TriggerCSV       ImportTrigger = "csv_upload"
	TriggerScheduled ImportTrigger = "scheduled"
	TriggerManual    ImportTrigger = "manual"
)

// ImportRunStatus is the outcome of one import invocation
type ImportRunStatus string

const (
	RunStatusSucceeded ImportRunStatus = "succeeded"
	RunStatusFailed    ImportRunStatus = "failed"
)

// ImportRun records one invocation of the import pipeline
type ImportRun struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Collection      string          `json:"collection" db:"collection"`
	Trigger         ImportTrigger   `json:"trigger" db:"trigger"`
	Source          ImportSource    `json:"source" db:"source"`
	Status          ImportRunStatus `json:"status" db:"status"`
	Received        int             `json:"received" db:"received"`
	Imported        int             `json:"imported" db:"imported"`
	Skipped         int             `json:"skipped" db:"skipped"`
	SkippedExisting int             `json:"skippedExisting" db:"skipped_existing"`
	Invalid         int             `json:"invalid" db:"invalid"`
	RequestID       string          `json:"requestId,omitempty" db:"request_id"`
	ErrorMessage    *string         `json:"errorMessage,omitempty" db:"error_message"`
	Details         json.RawMessage `json:"details,omitempty" db:"details"`
	StartedAt       time.Time       `json:"startedAt" db:"started_at"`
	DurationMs      int64           `json:"durationMs" db:"duration_ms"`
}

// TableName returns the table name for the ImportRun model
func (ImportRun) TableName() string {
	return "import_runs"
}

// NewImportRun creates a run record stamped with the current time
func NewImportRun(collection string, trigger ImportTrigger, source ImportSource) *ImportRun {
	return &ImportRun{
		ID:         uuid.New(),
		Collection: collection,
		Trigger:    trigger,
		Source:     source,
		Status:     RunStatusSucceeded,
		StartedAt:  time.Now(),
	}
}

// WithCounts copies the pipeline counters onto the run
func (r *ImportRun) WithCounts(received, imported, skipped, skippedExisting, invalid int) *ImportRun {
	r.Received = received
	r.Imported = imported
	r.Skipped = skipped
	r.SkippedExisting = skippedExisting
	r.Invalid = invalid
	return r
}

// WithRequest sets the request ID
func (r *ImportRun) WithRequest(requestID string) *ImportRun {
	r.RequestID = requestID
	return r
}

// WithError marks the run failed
func (r *ImportRun) WithError(err error) *ImportRun {
	if err == nil {
		return r
	}
	msg := err.Error()
	r.Status = RunStatusFailed
	r.ErrorMessage = &msg
	return r
}

// WithDetails attaches arbitrary JSON details
func (r *ImportRun) WithDetails(details interface{}) *ImportRun {
	if data, err := json.Marshal(details); err == nil {
		r.Details = data
	}
	return r
}

// Finish stamps the run duration
func (r *ImportRun) Finish() *ImportRun {
	r.DurationMs = time.Since(r.StartedAt).Milliseconds()
	return r
}
