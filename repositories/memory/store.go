// Package memory is an in-process document store. It backs local runs with
// STORE_DRIVER=memory and the pipeline tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
)

// ErrInjected is returned by operations armed through Faults
var ErrInjected = errors.New("injected store failure")

// Faults arms failures for tests. Zero values disable them.
type Faults struct {
	// FailLookup makes every existence lookup fail
	FailLookup bool
	// FailInsertAfter makes the Nth InsertBatch call fail (1-based)
	FailInsertAfter int
	// FailCommit makes transaction commits fail
	FailCommit bool
	// BeforeCommit runs at the start of every transaction commit, without locks held
	BeforeCommit func()
}

// Store holds collection -> id -> document
type Store struct {
	mu      sync.RWMutex
	data    map[string]map[string]*models.Document
	runs    []*models.ImportRun
	now     func() time.Time
	faults  Faults
	inserts int
	lookups int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		data: make(map[string]map[string]*models.Document),
		now:  time.Now,
	}
}

// WithClock replaces the timestamp source
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SetFaults arms or clears injected failures
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
	s.inserts = 0
}

// Lookups returns how many existence queries reached the store
func (s *Store) Lookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}

// Repositories returns the store wired as every repository
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Documents:  s,
		ImportRuns: &importRuns{store: s},
		TxManager:  &TransactionManager{store: s},
	}
}

// Seed stores docs directly, stamping timestamps. Existing ids are overwritten.
func (s *Store) Seed(docs ...*models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		c := d.Clone()
		now := s.now()
		c.CreatedAt, c.UpdatedAt = now, now
		s.collection(c.Collection)[c.ID] = c
	}
}

func (s *Store) collection(name string) map[string]*models.Document {
	coll, ok := s.data[name]
	if !ok {
		coll = make(map[string]*models.Document)
		s.data[name] = coll
	}
	return coll
}

// FindExistingIDs implements repositories.DocumentRepository
func (s *Store) FindExistingIDs(ctx context.Context, collection string, ids []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lookupFault(ctx); err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	coll := s.data[collection]
	for _, id := range ids {
		if _, ok := coll[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// FindExistingNaturalKeys implements repositories.DocumentRepository
func (s *Store) FindExistingNaturalKeys(ctx context.Context, collection string, keys []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lookupFault(ctx); err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	found := make(map[string]struct{})
	for _, doc := range s.data[collection] {
		if doc.NaturalKey == "" {
			continue
		}
		if _, ok := want[doc.NaturalKey]; ok {
			found[doc.NaturalKey] = struct{}{}
		}
	}
	return found, nil
}

// lookupFault must be called with s.mu held
func (s *Store) lookupFault(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lookups++
	if s.faults.FailLookup {
		return ErrInjected
	}
	return nil
}

// InsertBatch implements repositories.DocumentRepository. Inside a transaction
// the docs are staged and applied on commit.
func (s *Store) InsertBatch(ctx context.Context, docs []*models.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.inserts++
	failing := s.faults.FailInsertAfter > 0 && s.inserts >= s.faults.FailInsertAfter
	s.mu.Unlock()
	if failing {
		return nil, ErrInjected
	}

	if tx, ok := transactionFrom(ctx); ok {
		return tx.stage(docs), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(docs), nil
}

// apply writes docs that are absent, must be called with s.mu held
func (s *Store) apply(docs []*models.Document) []string {
	now := s.now()
	inserted := make([]string, 0, len(docs))
	for _, d := range docs {
		coll := s.collection(d.Collection)
		if _, exists := coll[d.ID]; exists {
			continue
		}
		d.CreatedAt, d.UpdatedAt = now, now
		coll[d.ID] = d.Clone()
		inserted = append(inserted, d.ID)
	}
	return inserted
}

// Get implements repositories.DocumentRepository
func (s *Store) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return doc.Clone(), nil
}

// List implements repositories.DocumentRepository
func (s *Store) List(ctx context.Context, collection string, limit, offset int) ([]*models.Document, error) {
	s.mu.RLock()
	docs := make([]*models.Document, 0, len(s.data[collection]))
	for _, d := range s.data[collection] {
		docs = append(docs, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []*models.Document{}, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// Update implements repositories.DocumentRepository
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	doc.UpdatedAt = s.now()
	return doc.Clone(), nil
}

// Upsert implements repositories.DocumentRepository
func (s *Store) Upsert(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	coll := s.collection(doc.Collection)
	if existing, ok := coll[doc.ID]; ok {
		for k, v := range doc.Fields {
			existing.Fields[k] = v
		}
		existing.UpdatedAt = now
		doc.CreatedAt, doc.UpdatedAt = existing.CreatedAt, now
		return nil
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	coll[doc.ID] = doc.Clone()
	return nil
}

// Delete implements repositories.DocumentRepository
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection][id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.data[collection], id)
	return nil
}

// Count implements repositories.DocumentRepository
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection]), nil
}

type importRuns struct {
	store *Store
}

func (r *importRuns) Insert(ctx context.Context, run *models.ImportRun) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *run
	r.store.runs = append(r.store.runs, &c)
	return nil
}

func (r *importRuns) ListRecent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*models.ImportRun, 0)
	for i := len(r.store.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		run := r.store.runs[i]
		if collection != "" && run.Collection != collection {
			continue
		}
		c := *run
		out = append(out, &c)
	}
	return out, nil
}
