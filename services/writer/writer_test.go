package writer

import (
	"context"
	"fmt"
	"testing"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func docs(n int) []*models.Document {
	out := make([]*models.Document, n)
	for i := range out {
		id := fmt.Sprintf("inv-%d", i)
		out[i] = models.NewDocument("inventory", id, "", map[string]any{"quantity": float64(i)}, models.SourceCSV)
	}
	return out
}

func newWriter(store *memory.Store, limit int) *Writer {
	repos := store.Repositories()
	return New(repos.Documents, repos.TxManager, limit, zap.NewNop())
}

func TestCommit_Chunks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	w := newWriter(store, 2)

	res, err := w.Commit(ctx, docs(5))
	require.NoError(t, err)
	assert.Len(t, res.Inserted, 5)
	assert.Empty(t, res.Rejected)

	count, _ := store.Count(ctx, "inventory")
	assert.Equal(t, 5, count)

	stored, err := store.Get(ctx, "inventory", "inv-3")
	require.NoError(t, err)
	assert.False(t, stored.CreatedAt.IsZero(), "store stamps timestamps")
}

func TestCommit_EmptyIsNoop(t *testing.T) {
	store := memory.NewStore()
	store.SetFaults(memory.Faults{FailCommit: true, FailInsertAfter: 1})
	w := newWriter(store, 0)

	res, err := w.Commit(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
}

func TestCommit_AllOrNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("failed chunk", func(t *testing.T) {
		store := memory.NewStore()
		store.SetFaults(memory.Faults{FailInsertAfter: 3})
		w := newWriter(store, 2)

		_, err := w.Commit(ctx, docs(6))
		require.ErrorIs(t, err, memory.ErrInjected)

		count, _ := store.Count(ctx, "inventory")
		assert.Zero(t, count)
	})

	t.Run("failed commit", func(t *testing.T) {
		store := memory.NewStore()
		store.SetFaults(memory.Faults{FailCommit: true})
		w := newWriter(store, 0)

		_, err := w.Commit(ctx, docs(3))
		require.ErrorIs(t, err, memory.ErrInjected)

		count, _ := store.Count(ctx, "inventory")
		assert.Zero(t, count)
	})
}

func TestCommit_ReportsRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Seed(models.NewDocument("inventory", "inv-1", "", nil, models.SourceCSV))
	w := newWriter(store, 0)

	res, err := w.Commit(ctx, docs(3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"inv-0", "inv-2"}, res.Inserted)
	assert.Equal(t, []string{"inv-1"}, res.Rejected)
}
