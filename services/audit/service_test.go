package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockImportRunRepository is a mock implementation of ImportRunRepository
type MockImportRunRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.ImportRun
}

func (m *MockImportRunRepository) Insert(ctx context.Context, run *models.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, run)
	m.inserted = append(m.inserted, run)
	return args.Error(0)
}

func (m *MockImportRunRepository) ListRecent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error) {
	args := m.Called(ctx, collection, limit)
	if runs := args.Get(0); runs != nil {
		return runs.([]*models.ImportRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockImportRunRepository) Inserted() []*models.ImportRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserted
}

func TestRecorder_StartStop(t *testing.T) {
	mockRepo := new(MockImportRunRepository)
	recorder := NewRecorder(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, recorder.Start())

	stats := recorder.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, recorder.Start())

	require.NoError(t, recorder.Stop(time.Second))
	assert.False(t, recorder.GetStats().Started)
	assert.Error(t, recorder.Stop(time.Second))
}

func TestRecorder_RecordPersistsRuns(t *testing.T) {
	mockRepo := new(MockImportRunRepository)
	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*models.ImportRun")).Return(nil)

	recorder := NewRecorder(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, recorder.Start())

	for i := 0; i < 3; i++ {
		run := models.NewImportRun(models.CollectionTrips, models.TriggerWebhook, models.SourceWebhook).
			WithCounts(2, 1, 1, 1, 0)
		require.NoError(t, recorder.Record(run))
	}

	require.NoError(t, recorder.Stop(time.Second))
	assert.Len(t, mockRepo.Inserted(), 3)
	mockRepo.AssertNumberOfCalls(t, "Insert", 3)
}

func TestRecorder_InsertErrorIsLoggedNotFatal(t *testing.T) {
	mockRepo := new(MockImportRunRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	recorder := NewRecorder(mockRepo, zap.NewNop(), Config{BufferSize: 4, WorkerCount: 1})
	require.NoError(t, recorder.Start())
	require.NoError(t, recorder.Record(models.NewImportRun(models.CollectionInventory, models.TriggerCSV, models.SourceCSV)))
	require.NoError(t, recorder.Stop(time.Second))

	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestRecorder_RecordBeforeStart(t *testing.T) {
	recorder := NewRecorder(new(MockImportRunRepository), zap.NewNop(), DefaultConfig())
	err := recorder.Record(models.NewImportRun(models.CollectionTrips, models.TriggerManual, models.SourceManual))
	assert.Error(t, err)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	mockRepo := new(MockImportRunRepository)
	block := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-block }).
		Return(nil)

	recorder := NewRecorder(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, recorder.Start())

	var errs int
	for i := 0; i < 5; i++ {
		if err := recorder.Record(models.NewImportRun(models.CollectionTrips, models.TriggerWebhook, models.SourceWebhook)); err != nil {
			errs++
		}
	}
	assert.GreaterOrEqual(t, errs, 3)
	assert.Equal(t, errs, recorder.GetStats().Dropped)

	close(block)
	require.NoError(t, recorder.Stop(time.Second))
}
