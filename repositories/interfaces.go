package repositories

import (
	"context"
	"errors"

	"github.com/matanuska/fleetsync/models"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrWriteConflict is returned by Commit when another writer stored one of
	// the transaction's staged ids first. Nothing from the transaction is applied.
	ErrWriteConflict = errors.New("concurrent write conflict")
)

// TransactionManager manages store transactions.
// Repositories pick the active transaction up from the context passed to InTransaction's callback.
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a store transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DocumentRepository stores documents grouped by collection
type DocumentRepository interface {
	// FindExistingIDs returns the subset of ids that already exist in collection
	FindExistingIDs(ctx context.Context, collection string, ids []string) (map[string]struct{}, error)

	// FindExistingNaturalKeys returns the subset of keys already stored as a natural key in collection
	FindExistingNaturalKeys(ctx context.Context, collection string, keys []string) (map[string]struct{}, error)

	// InsertBatch inserts documents whose id is not taken yet and returns the ids actually inserted.
	// Existing documents are never modified. Timestamps are assigned by the store.
	InsertBatch(ctx context.Context, docs []*models.Document) ([]string, error)

	// Get retrieves one document
	Get(ctx context.Context, collection, id string) (*models.Document, error)

	// List returns documents ordered by creation time, newest first.
	// A limit <= 0 returns every document; a negative offset is treated as 0.
	List(ctx context.Context, collection string, limit, offset int) ([]*models.Document, error)

	// Update merges fields into an existing document and bumps updatedAt
	Update(ctx context.Context, collection, id string, fields map[string]any) (*models.Document, error)

	// Upsert merges fields into a document, creating it if absent
	Upsert(ctx context.Context, doc *models.Document) error

	// Delete removes a document
	Delete(ctx context.Context, collection, id string) error

	// Count returns the number of documents in collection
	Count(ctx context.Context, collection string) (int, error)
}

// ImportRunRepository stores the history of import invocations
type ImportRunRepository interface {
	// Insert inserts a run record
	Insert(ctx context.Context, run *models.ImportRun) error

	// ListRecent returns the newest runs, optionally filtered by collection.
	// A limit <= 0 returns every run.
	ListRecent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error)
}

// Repositories bundles the store implementations
type Repositories struct {
	Documents  DocumentRepository
	ImportRuns ImportRunRepository
	TxManager  TransactionManager
}
