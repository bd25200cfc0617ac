// Package writer commits the accepted documents of one import invocation.
package writer

import (
	"context"
	"fmt"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/services/dedup"
	"go.uber.org/zap"
)

// DefaultBatchLimit is the per-statement document limit
const DefaultBatchLimit = 500

// Result reports which documents were stored
type Result struct {
	Inserted []string
	// Rejected ids were taken by a concurrent writer after the dedup lookup
	Rejected []string
}

// Writer performs all-or-nothing batched inserts
type Writer struct {
	docs       repositories.DocumentRepository
	txm        repositories.TransactionManager
	batchLimit int
	logger     *zap.Logger
}

// New creates a writer. A non-positive batchLimit uses DefaultBatchLimit.
func New(docs repositories.DocumentRepository, txm repositories.TransactionManager, batchLimit int, logger *zap.Logger) *Writer {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &Writer{
		docs:       docs,
		txm:        txm,
		batchLimit: batchLimit,
		logger:     logger,
	}
}

// Commit inserts docs in chunks of batchLimit inside a single transaction.
// Empty input returns without touching the store.
func (w *Writer) Commit(ctx context.Context, docs []*models.Document) (*Result, error) {
	res := &Result{}
	if len(docs) == 0 {
		return res, nil
	}

	err := w.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		for i, chunk := range dedup.Chunk(docs, w.batchLimit) {
			inserted, err := w.docs.InsertBatch(ctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			res.Inserted = append(res.Inserted, inserted...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Inserted) < len(docs) {
		ok := make(map[string]struct{}, len(res.Inserted))
		for _, id := range res.Inserted {
			ok[id] = struct{}{}
		}
		for _, d := range docs {
			if _, inserted := ok[d.ID]; !inserted {
				res.Rejected = append(res.Rejected, d.ID)
			}
		}
		w.logger.Warn("documents rejected at insert time",
			zap.String("collection", docs[0].Collection),
			zap.Strings("ids", res.Rejected))
	}

	w.logger.Info("batch committed",
		zap.String("collection", docs[0].Collection),
		zap.Int("documents", len(docs)),
		zap.Int("inserted", len(res.Inserted)))
	return res, nil
}
