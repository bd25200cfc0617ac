package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"go.uber.org/zap"
)

const documentColumns = `collection, id, natural_key, data, import_source, created_at, updated_at`

// DocumentRepository implements repositories.DocumentRepository on the documents table
type DocumentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, logger *zap.Logger) repositories.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// FindExistingIDs returns the ids already present in collection
func (r *DocumentRepository) FindExistingIDs(ctx context.Context, collection string, ids []string) (map[string]struct{}, error) {
	query := `SELECT id FROM documents WHERE collection = $1 AND id = ANY($2)`
	return r.existing(ctx, query, collection, ids)
}

// FindExistingNaturalKeys returns the natural keys already present in collection
func (r *DocumentRepository) FindExistingNaturalKeys(ctx context.Context, collection string, keys []string) (map[string]struct{}, error) {
	query := `SELECT DISTINCT natural_key FROM documents WHERE collection = $1 AND natural_key = ANY($2)`
	return r.existing(ctx, query, collection, keys)
}

func (r *DocumentRepository) existing(ctx context.Context, query, collection string, values []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(values) == 0 {
		return found, nil
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, collection, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan existing key: %w", err)
		}
		found[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate existing keys: %w", err)
	}
	return found, nil
}

// InsertBatch inserts docs in one statement. Conflicting ids are left untouched
// and are absent from the returned slice. Inserted docs get the server timestamps.
func (r *DocumentRepository) InsertBatch(ctx context.Context, docs []*models.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var (
		sb   strings.Builder
		args = make([]interface{}, 0, len(docs)*5)
	)
	sb.WriteString(`INSERT INTO documents (collection, id, natural_key, data, import_source) VALUES `)
	for i, doc := range docs {
		data, err := json.Marshal(doc.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, doc.Collection, doc.ID, nullString(doc.NaturalKey), data, nullString(string(doc.ImportSource)))
	}
	sb.WriteString(` ON CONFLICT (collection, id) DO NOTHING RETURNING id, created_at, updated_at`)

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	inserted := make([]string, 0, len(docs))
	for rows.Next() {
		var id string
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&id, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inserted document: %w", err)
		}
		if doc, ok := byID[id]; ok {
			doc.CreatedAt = createdAt.Time
			doc.UpdatedAt = updatedAt.Time
		}
		inserted = append(inserted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to insert documents: %w", err)
	}

	r.logger.Debug("documents inserted",
		zap.String("collection", docs[0].Collection),
		zap.Int("requested", len(docs)),
		zap.Int("inserted", len(inserted)))
	return inserted, nil
}

// Get retrieves one document
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE collection = $1 AND id = $2`

	executor := GetExecutor(ctx, r.db)
	doc, err := scanDocument(executor.QueryRowContext(ctx, query, collection, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns documents in collection, newest first
func (r *DocumentRepository) List(ctx context.Context, collection string, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE collection = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	if offset < 0 {
		offset = 0
	}
	rows, err := executor.QueryContext(ctx, query, collection, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// Update merges fields into an existing document
func (r *DocumentRepository) Update(ctx context.Context, collection, id string, fields map[string]any) (*models.Document, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	query := `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
		RETURNING ` + documentColumns

	executor := GetExecutor(ctx, r.db)
	doc, err := scanDocument(executor.QueryRowContext(ctx, query, collection, id, data))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

// Upsert merges doc.Fields into the stored document, creating it if absent
func (r *DocumentRepository) Upsert(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, natural_key, data, import_source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = now()
		RETURNING created_at, updated_at
	`

	executor := GetExecutor(ctx, r.db)
	err = executor.QueryRowContext(ctx, query,
		doc.Collection,
		doc.ID,
		nullString(doc.NaturalKey),
		data,
		nullString(string(doc.ImportSource)),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Delete removes a document
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Count returns the number of documents in collection
func (r *DocumentRepository) Count(ctx context.Context, collection string) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE collection = $1`

	var count int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc          models.Document
		naturalKey   sql.NullString
		data         []byte
		importSource sql.NullString
	)
	if err := row.Scan(&doc.Collection, &doc.ID, &naturalKey, &data, &importSource, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.NaturalKey = naturalKey.String
	doc.ImportSource = models.ImportSource(importSource.String)
	doc.Fields = make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
		}
	}
	return &doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// limitArg binds LIMIT NULL, which Postgres treats as no limit, for limit <= 0
func limitArg(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}
