package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories/memory"
	"github.com/matanuska/fleetsync/services/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rec(id, key string) *normalize.Record {
	return &normalize.Record{ID: id, NaturalKey: key, Fields: map[string]any{}}
}

func TestPartition_DocumentID(t *testing.T) {
	store := memory.NewStore()
	store.Seed(models.NewDocument("trips", "LR-1", "LR-1", nil, models.SourceWebhook))
	gate := NewGate(store, 0, 0, zap.NewNop())

	records := []*normalize.Record{
		rec("LR-1", "LR-1"),
		rec("LR-2", "LR-2"),
		rec("LR-2", "LR-2"),
		rec("", ""),
	}

	res, err := gate.Partition(context.Background(), "trips", KeyDocumentID, records)
	require.NoError(t, err)

	require.Len(t, res.Fresh, 1)
	assert.Equal(t, "LR-2", res.Fresh[0].ID)
	assert.Same(t, records[1], res.Fresh[0], "first occurrence wins")
	assert.Len(t, res.Existing, 1)
	assert.Len(t, res.Duplicates, 1)
	assert.Len(t, res.Unkeyed, 1)
	assert.Equal(t, 2, res.SkippedExisting())
	assert.Equal(t, 1, store.Lookups())
}

func TestPartition_QueryUsesNaturalKey(t *testing.T) {
	store := memory.NewStore()
	store.Seed(models.NewDocument("trips", "auto-1", "LR-7", nil, models.SourceWebBook))
	gate := NewGate(store, 0, 0, zap.NewNop())

	res, err := gate.Partition(context.Background(), "trips", KeyQuery, []*normalize.Record{
		rec("", "LR-7"),
		rec("", "LR-8"),
	})
	require.NoError(t, err)
	require.Len(t, res.Fresh, 1)
	assert.Equal(t, "LR-8", res.Fresh[0].NaturalKey)
	assert.Len(t, res.Existing, 1)
}

func TestPartition_ChunksToInClauseLimit(t *testing.T) {
	store := memory.NewStore()
	gate := NewGate(store, 30, 3, zap.NewNop())

	var records []*normalize.Record
	for i := 0; i < 95; i++ {
		key := fmt.Sprintf("LR-%03d", i)
		records = append(records, rec(key, key))
		if i%10 == 0 {
			store.Seed(models.NewDocument("trips", key, key, nil, models.SourceWebhook))
		}
	}

	res, err := gate.Partition(context.Background(), "trips", KeyDocumentID, records)
	require.NoError(t, err)
	assert.Equal(t, 4, store.Lookups(), "95 keys in chunks of 30")
	assert.Len(t, res.Existing, 10)
	assert.Len(t, res.Fresh, 85)
}

func TestPartition_NoneAndEmpty(t *testing.T) {
	store := memory.NewStore()
	gate := NewGate(store, 0, 0, zap.NewNop())

	records := []*normalize.Record{rec("inv_1", ""), rec("inv_2", "")}
	res, err := gate.Partition(context.Background(), "inventory", KeyNone, records)
	require.NoError(t, err)
	assert.Len(t, res.Fresh, 2)

	res, err = gate.Partition(context.Background(), "trips", KeyDocumentID, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fresh)
	assert.Zero(t, store.Lookups(), "no store access without keys")
}

func TestPartition_LookupFailure(t *testing.T) {
	store := memory.NewStore()
	store.SetFaults(memory.Faults{FailLookup: true})
	gate := NewGate(store, 0, 0, zap.NewNop())

	_, err := gate.Partition(context.Background(), "trips", KeyDocumentID, []*normalize.Record{rec("a", "a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInjected)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2}}, Chunk([]int{1, 2}, 3))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk([]int{1, 2, 3, 4, 5}, 2))
}
