package app

import (
	"context"
	"testing"
	"time"

	"github.com/matanuska/fleetsync/config"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services/importer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("memory store wires the whole pipeline", func(t *testing.T) {
		ctx := context.Background()
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, testConfig(t), logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.NotNil(t, deps.Documents)
		assert.NotNil(t, deps.ImportRuns)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Gate)
		assert.NotNil(t, deps.Writer)
		assert.NotNil(t, deps.Importer)
		assert.NotNil(t, deps.Records)
		assert.NotNil(t, deps.Scheduler)
		assert.NotNil(t, deps.Prober)
		assert.NotNil(t, deps.Alerter)
		assert.NotNil(t, deps.AppCheck)
		assert.True(t, deps.Runs.GetStats().Started)
		assert.NoError(t, deps.Ping(ctx))

		require.NoError(t, deps.Close(ctx))
		assert.False(t, deps.Runs.GetStats().Started)
	})

	t.Run("web book jobs without urls are disabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.WebBook.TripsURL = "https://example.com/trips"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		status := deps.Scheduler.Status()
		require.Len(t, status, 2)
		assert.Equal(t, JobDriverBehavior, status[0].Name)
		assert.False(t, status[0].Enabled)
		assert.Equal(t, JobTrips, status[1].Name)
		assert.True(t, status[1].Enabled)
	})

	t.Run("unknown store driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.StoreDriver = "bolt"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.StoreDriver = config.StoreDriverPostgres
		cfg.Database.Host = "invalid-host-that-does-not-exist"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependenciesImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	rows := []any{
		map[string]any{"loadRef": "LR-1", "fleetNumber": "21H"},
		map[string]any{"loadRef": "LR-2", "fleetNumber": "22H"},
	}
	sum, err := deps.Importer.Import(ctx, importer.TripsWebhookSpec(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Imported)

	sum, err = deps.Importer.Import(ctx, importer.TripsWebhookSpec(), rows)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Imported)
	assert.Equal(t, 2, sum.SkippedExisting)

	count, err := deps.Documents.Count(ctx, models.CollectionTrips)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Close drains the recorder so both runs are persisted
	require.NoError(t, deps.Close(ctx))
	runs, err := deps.ImportRuns.ListRecent(ctx, models.CollectionTrips, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestDependenciesClose(t *testing.T) {
	t.Run("second close reports the stopped recorder only", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NoError(t, deps.Close(ctx))
		assert.NotPanics(t, func() { _ = deps.Close(ctx) })
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "development",
		StoreDriver: config.StoreDriverMemory,
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "fleetsync_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		},
		Import: config.ImportConfig{
			BatchLimit:        500,
			InClauseLimit:     30,
			LookupConcurrency: 4,
			RunBufferSize:     10,
			RunWorkers:        1,
		},
		WebBook: config.WebBookConfig{
			Interval: time.Minute,
			Timeout:  time.Second,
			Enabled:  true,
		},
		AppCheck:    config.AppCheckConfig{Secret: "test-secret", Required: true},
		Alerts:      config.AlertConfig{Timeout: time.Second},
		Diagnostics: config.DiagnosticsConfig{Timeout: time.Second},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "console",
		},
	}
}
