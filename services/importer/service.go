// Package importer runs the shared import pipeline: normalize each row, drop
// keys that already exist, then commit the rest in one batch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matanuska/fleetsync/internal/observability"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/dedup"
	"github.com/matanuska/fleetsync/services/normalize"
	"github.com/matanuska/fleetsync/services/writer"
	"go.uber.org/zap"
)

const (
	// MaxDetails caps per-row details and errors in a Summary
	MaxDetails = 10
	// MaxSamples caps the sample records in a Summary
	MaxSamples = 5
)

// Row statuses reported in Detail
const (
	StatusImported = "imported"
	StatusExisting = "skipped_existing"
	StatusInvalid  = "invalid"
)

// RunRecorder receives one ImportRun per invocation
type RunRecorder interface {
	Record(run *models.ImportRun) error
}

// ImportSpec parameterizes one invocation of the pipeline
type ImportSpec struct {
	Collection string
	Strategy   dedup.Strategy
	Normalize  normalize.Func
	// Source tags rows that do not name their own import source
	Source  models.ImportSource
	Trigger models.ImportTrigger
	// Diagnostic marks probe traffic; nothing is read or written
	Diagnostic bool
	RequestID  string
}

// Detail describes what happened to one row
type Detail struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Summary is the outcome of one invocation. Imported + Skipped equals Received.
type Summary struct {
	Received        int              `json:"received"`
	Imported        int              `json:"imported"`
	Skipped         int              `json:"skipped"`
	SkippedExisting int              `json:"skippedExisting"`
	Invalid         int              `json:"invalid"`
	Message         string           `json:"message"`
	Diagnostic      bool             `json:"diagnostic,omitempty"`
	Details         []Detail         `json:"details,omitempty"`
	DetailCount     int              `json:"detailCount"`
	Errors          []string         `json:"errors,omitempty"`
	Samples         []map[string]any `json:"samples,omitempty"`
	ImportedIDs     []string         `json:"-"`
}

func (s *Summary) addDetail(d Detail) {
	s.DetailCount++
	if len(s.Details) < MaxDetails {
		s.Details = append(s.Details, d)
	}
}

func (s *Summary) addError(msg string) {
	if len(s.Errors) < MaxDetails {
		s.Errors = append(s.Errors, msg)
	}
}

// Service runs imports against one store
type Service struct {
	gate   *dedup.Gate
	writer *writer.Writer
	runs   RunRecorder
	logger *zap.Logger
}

// NewService creates the pipeline service. runs may be nil.
func NewService(gate *dedup.Gate, w *writer.Writer, runs RunRecorder, logger *zap.Logger) *Service {
	return &Service{
		gate:   gate,
		writer: w,
		runs:   runs,
		logger: logger,
	}
}

// Import drives rows through normalize, dedup and write. Malformed rows are
// counted and skipped; only store failures abort the invocation.
func (s *Service) Import(ctx context.Context, spec ImportSpec, rows []any) (*Summary, error) {
	if !models.IsKnownCollection(spec.Collection) {
		return nil, services.ErrUnknownCollection
	}
	start := time.Now()
	sum := &Summary{Received: len(rows)}

	if spec.Diagnostic {
		observability.RecordDiagnosticRequest()
		sum.Diagnostic = true
		sum.Message = "Diagnostic request acknowledged, nothing was written"
		s.logger.Info("diagnostic import request ignored",
			zap.String("collection", spec.Collection),
			zap.String("request_id", spec.RequestID),
			zap.Int("rows", len(rows)))
		return sum, nil
	}

	if len(rows) == 0 {
		sum.Message = fmt.Sprintf("No %s to import", noun(spec.Collection))
		return sum, nil
	}

	records := make([]*normalize.Record, 0, len(rows))
	index := make(map[*normalize.Record]int, len(rows))
	for i, row := range rows {
		if IsDiagnostic(row) {
			sum.Invalid++
			sum.addDetail(Detail{Index: i, Status: StatusInvalid, Reason: "diagnostic row"})
			continue
		}
		rec, err := spec.Normalize(row, i)
		if err != nil {
			sum.Invalid++
			sum.addError(err.Error())
			sum.addDetail(Detail{Index: i, Status: StatusInvalid, Reason: err.Error()})
			continue
		}
		if rec.ImportSource == "" {
			rec.ImportSource = spec.Source
		}
		records = append(records, rec)
		index[rec] = i
	}

	part, err := s.gate.Partition(ctx, spec.Collection, spec.Strategy, records)
	if err != nil {
		return nil, s.fail(spec, sum, start, services.ErrStore.Wrapf(err, "failed to check existing records"))
	}

	for _, rec := range part.Unkeyed {
		sum.Invalid++
		sum.addError(fmt.Sprintf("row %d: missing natural key", index[rec]))
		sum.addDetail(Detail{Index: index[rec], Status: StatusInvalid, Reason: "missing natural key"})
	}
	for _, group := range [][]*normalize.Record{part.Existing, part.Duplicates} {
		for _, rec := range group {
			sum.SkippedExisting++
			sum.addDetail(Detail{Index: index[rec], ID: dedup.Key(spec.Strategy, rec), Status: StatusExisting, Reason: "already exists"})
		}
	}

	docs := make([]*models.Document, 0, len(part.Fresh))
	byID := make(map[string]*normalize.Record, len(part.Fresh))
	for _, rec := range part.Fresh {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := byID[id]; dup {
			sum.SkippedExisting++
			sum.addDetail(Detail{Index: index[rec], ID: id, Status: StatusExisting, Reason: "duplicate id in payload"})
			continue
		}
		docs = append(docs, models.NewDocument(spec.Collection, id, rec.NaturalKey, rec.Fields, rec.ImportSource))
		byID[id] = rec
	}

	res, err := s.writer.Commit(ctx, docs)
	if errors.Is(err, repositories.ErrWriteConflict) {
		return nil, s.fail(spec, sum, start, services.ErrWriteConflict.Wrap(err))
	}
	if err != nil {
		return nil, s.fail(spec, sum, start, services.ErrStore.Wrapf(err, "failed to commit import batch"))
	}

	rejected := make(map[string]struct{}, len(res.Rejected))
	for _, id := range res.Rejected {
		rejected[id] = struct{}{}
	}
	for _, d := range docs {
		rec := byID[d.ID]
		if _, lost := rejected[d.ID]; lost {
			sum.SkippedExisting++
			sum.addDetail(Detail{Index: index[rec], ID: d.ID, Status: StatusExisting, Reason: "created concurrently"})
			continue
		}
		sum.Imported++
		sum.ImportedIDs = append(sum.ImportedIDs, d.ID)
		sum.addDetail(Detail{Index: index[rec], ID: d.ID, Status: StatusImported})
		if len(sum.Samples) < MaxSamples {
			sum.Samples = append(sum.Samples, d.Flatten())
		}
	}

	sum.Skipped = sum.SkippedExisting + sum.Invalid
	sum.Message = fmt.Sprintf("Processed %d %s. Imported: %d, Skipped: %d, Errors: %d",
		sum.Received, noun(spec.Collection), sum.Imported, sum.SkippedExisting, sum.Invalid)

	observability.RecordRows(spec.Collection, string(spec.Source), "imported", sum.Imported)
	observability.RecordRows(spec.Collection, string(spec.Source), "skipped_existing", sum.SkippedExisting)
	observability.RecordRows(spec.Collection, string(spec.Source), "invalid", sum.Invalid)
	observability.ObserveImport(spec.Collection, string(spec.Trigger), time.Since(start))

	s.logger.Info("import completed",
		zap.String("collection", spec.Collection),
		zap.String("trigger", string(spec.Trigger)),
		zap.String("request_id", spec.RequestID),
		zap.Int("received", sum.Received),
		zap.Int("imported", sum.Imported),
		zap.Int("skipped_existing", sum.SkippedExisting),
		zap.Int("invalid", sum.Invalid))

	s.record(spec, sum, start, nil)
	return sum, nil
}

func (s *Service) fail(spec ImportSpec, sum *Summary, start time.Time, err error) error {
	observability.RecordImportFailure(spec.Collection, string(services.GetErrorType(err)))
	s.logger.Error("import failed",
		zap.String("collection", spec.Collection),
		zap.String("trigger", string(spec.Trigger)),
		zap.String("request_id", spec.RequestID),
		zap.Error(err))
	s.record(spec, sum, start, err)
	return err
}

func (s *Service) record(spec ImportSpec, sum *Summary, start time.Time, err error) {
	if s.runs == nil {
		return
	}
	run := models.NewImportRun(spec.Collection, spec.Trigger, spec.Source).
		WithCounts(sum.Received, sum.Imported, sum.SkippedExisting+sum.Invalid, sum.SkippedExisting, sum.Invalid).
		WithRequest(spec.RequestID).
		WithError(err)
	run.StartedAt = start
	if len(sum.Errors) > 0 {
		run.WithDetails(map[string]any{"errors": sum.Errors})
	}
	if recErr := s.runs.Record(run.Finish()); recErr != nil {
		s.logger.Warn("import run not recorded", zap.Error(recErr))
	}
}

// IsDiagnostic reports whether v is an object carrying a truthy diagnosticMode
func IsDiagnostic(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	flag, ok := m["diagnosticMode"]
	return ok && normalize.Bool(flag)
}

func noun(collection string) string {
	switch collection {
	case models.CollectionTrips:
		return "trips"
	case models.CollectionDriverBehavior:
		return "driver behavior events"
	case models.CollectionInventory:
		return "inventory items"
	default:
		return "records"
	}
}
