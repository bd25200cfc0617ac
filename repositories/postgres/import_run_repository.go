package postgres

import (
	"context"
	"fmt"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"go.uber.org/zap"
)

// ImportRunRepository implements repositories.ImportRunRepository
type ImportRunRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewImportRunRepository creates a new import run repository
func NewImportRunRepository(db *DB, logger *zap.Logger) repositories.ImportRunRepository {
	return &ImportRunRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a run record. Called from the background recorder, never on the request path.
func (r *ImportRunRepository) Insert(ctx context.Context, run *models.ImportRun) error {
	query := `
		INSERT INTO import_runs (
			id, collection, trigger, source, status, received, imported, skipped,
			skipped_existing, invalid, request_id, error_message, details, started_at, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	var details interface{}
	if len(run.Details) > 0 {
		details = []byte(run.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		run.ID,
		run.Collection,
		run.Trigger,
		run.Source,
		run.Status,
		run.Received,
		run.Imported,
		run.Skipped,
		run.SkippedExisting,
		run.Invalid,
		nullString(run.RequestID),
		run.ErrorMessage,
		details,
		run.StartedAt,
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}

	r.logger.Debug("import run inserted",
		zap.String("id", run.ID.String()),
		zap.String("collection", run.Collection),
		zap.String("status", string(run.Status)))
	return nil
}

// ListRecent returns the newest runs. An empty collection matches all collections.
func (r *ImportRunRepository) ListRecent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error) {
	query := `
		SELECT id, collection, trigger, source, status, received, imported, skipped,
		       skipped_existing, invalid, COALESCE(request_id, ''), error_message, details,
		       started_at, duration_ms
		FROM import_runs
		WHERE ($1 = '' OR collection = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, collection, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		run := &models.ImportRun{}
		var details []byte
		if err := rows.Scan(
			&run.ID,
			&run.Collection,
			&run.Trigger,
			&run.Source,
			&run.Status,
			&run.Received,
			&run.Imported,
			&run.Skipped,
			&run.SkippedExisting,
			&run.Invalid,
			&run.RequestID,
			&run.ErrorMessage,
			&details,
			&run.StartedAt,
			&run.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		run.Details = details
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import runs: %w", err)
	}

	return runs, nil
}
