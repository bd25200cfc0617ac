// Package dedup decides which normalized records are new to a collection.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/services/normalize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Strategy selects where the natural key lives
type Strategy int

const (
	// KeyDocumentID uses the natural key as the document id
	KeyDocumentID Strategy = iota
	// KeyQuery stores the natural key in a field next to an auto id
	KeyQuery
	// KeyNone disables deduplication
	KeyNone
)

func (s Strategy) String() string {
	switch s {
	case KeyDocumentID:
		return "document_id"
	case KeyQuery:
		return "query"
	case KeyNone:
		return "none"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

const (
	DefaultInClauseLimit = 30
	DefaultConcurrency   = 4
)

// Result partitions the candidates of one invocation
type Result struct {
	Fresh []*normalize.Record
	// Existing records have a key already stored
	Existing []*normalize.Record
	// Duplicates repeat a key seen earlier in the same payload
	Duplicates []*normalize.Record
	// Unkeyed records have an empty key and never reach the store
	Unkeyed []*normalize.Record
}

// SkippedExisting counts records dropped because their key is taken
func (r *Result) SkippedExisting() int {
	return len(r.Existing) + len(r.Duplicates)
}

// Gate runs the batched existence lookup
type Gate struct {
	docs          repositories.DocumentRepository
	inClauseLimit int
	concurrency   int
	logger        *zap.Logger
}

// NewGate creates a gate. Non-positive limits fall back to the defaults.
func NewGate(docs repositories.DocumentRepository, inClauseLimit, concurrency int, logger *zap.Logger) *Gate {
	if inClauseLimit <= 0 {
		inClauseLimit = DefaultInClauseLimit
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Gate{
		docs:          docs,
		inClauseLimit: inClauseLimit,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Key returns the value a record is deduplicated on under s
func Key(s Strategy, r *normalize.Record) string {
	switch s {
	case KeyDocumentID:
		return r.ID
	case KeyQuery:
		return r.NaturalKey
	default:
		return ""
	}
}

// Partition splits records into fresh and skipped with one lookup pass.
// The first occurrence of a key in records wins.
func (g *Gate) Partition(ctx context.Context, collection string, strategy Strategy, records []*normalize.Record) (*Result, error) {
	res := &Result{}
	if strategy == KeyNone {
		res.Fresh = records
		return res, nil
	}

	seen := make(map[string]struct{}, len(records))
	candidates := make([]*normalize.Record, 0, len(records))
	keys := make([]string, 0, len(records))
	for _, r := range records {
		key := Key(strategy, r)
		if key == "" {
			res.Unkeyed = append(res.Unkeyed, r)
			continue
		}
		if _, dup := seen[key]; dup {
			res.Duplicates = append(res.Duplicates, r)
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, r)
		keys = append(keys, key)
	}

	existing, err := g.lookup(ctx, collection, strategy, keys)
	if err != nil {
		return nil, err
	}

	for _, r := range candidates {
		if _, ok := existing[Key(strategy, r)]; ok {
			res.Existing = append(res.Existing, r)
			continue
		}
		res.Fresh = append(res.Fresh, r)
	}

	g.logger.Debug("dedup partition",
		zap.String("collection", collection),
		zap.String("strategy", strategy.String()),
		zap.Int("fresh", len(res.Fresh)),
		zap.Int("existing", len(res.Existing)),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Int("unkeyed", len(res.Unkeyed)))
	return res, nil
}

// lookup queries keys in chunks of inClauseLimit with bounded concurrency
func (g *Gate) lookup(ctx context.Context, collection string, strategy Strategy, keys []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(keys) == 0 {
		return found, nil
	}

	find := g.docs.FindExistingIDs
	if strategy == KeyQuery {
		find = g.docs.FindExistingNaturalKeys
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, chunk := range Chunk(keys, g.inClauseLimit) {
		eg.Go(func() error {
			hits, err := find(egCtx, collection, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for k := range hits {
				found[k] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("existence lookup on %s: %w", collection, err)
	}
	return found, nil
}

// Chunk splits s into slices of at most size elements
func Chunk[T any](s []T, size int) [][]T {
	if size <= 0 || len(s) <= size {
		if len(s) == 0 {
			return nil
		}
		return [][]T{s}
	}
	chunks := make([][]T, 0, (len(s)+size-1)/size)
	for size < len(s) {
		s, chunks = s[size:], append(chunks, s[:size:size])
	}
	return append(chunks, s)
}
