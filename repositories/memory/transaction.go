package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
)

var errTxDone = errors.New("transaction already finished")

type transactionContextKey struct{}

// TransactionManager implements repositories.TransactionManager for Store
type TransactionManager struct {
	store *Store
}

// Begin starts a transaction that buffers inserts until Commit
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Transaction{store: tm.store, ctx: ctx}, nil
}

// InTransaction runs fn with the transaction stored in its context.
// Commits when fn succeeds, discards staged writes on error or panic.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, transactionContextKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Transaction stages inserted documents
type Transaction struct {
	store  *Store
	ctx    context.Context
	mu     sync.Mutex
	staged []*models.Document
	ids    map[string]struct{}
	done   bool
}

// stage records docs and reports which ones would be inserted: ids that are
// neither stored nor already staged.
func (t *Transaction) stage(docs []*models.Document) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.ids == nil {
		t.ids = make(map[string]struct{})
	}
	accepted := make([]string, 0, len(docs))
	for _, d := range docs {
		key := d.Collection + "\x00" + d.ID
		if _, ok := t.ids[key]; ok {
			continue
		}
		if _, ok := t.store.data[d.Collection][d.ID]; ok {
			continue
		}
		t.ids[key] = struct{}{}
		t.staged = append(t.staged, d)
		accepted = append(accepted, d.ID)
	}
	return accepted
}

// Commit applies every staged insert at once. If another writer stored one of
// the staged ids after staging, nothing is applied and ErrWriteConflict is
// returned, so an id is never reported inserted by two writers.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.done = true

	t.store.mu.RLock()
	hook := t.store.faults.BeforeCommit
	t.store.mu.RUnlock()
	if hook != nil {
		hook()
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.faults.FailCommit {
		return ErrInjected
	}
	for _, d := range t.staged {
		if _, taken := t.store.data[d.Collection][d.ID]; taken {
			return fmt.Errorf("%w: %s/%s", repositories.ErrWriteConflict, d.Collection, d.ID)
		}
	}
	t.store.apply(t.staged)
	return nil
}

// Rollback discards staged inserts. Rolling back a finished transaction is a no-op.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.staged = nil
	return nil
}

// Context returns the context the transaction was started with
func (t *Transaction) Context() context.Context {
	return t.ctx
}

func transactionFrom(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(*Transaction)
	return tx, ok
}
