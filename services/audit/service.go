// Package audit records import runs in the background so the request path
// never waits on the history table.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"go.uber.org/zap"
)

// Recorder persists ImportRun records asynchronously
type Recorder struct {
	runs        repositories.ImportRunRepository
	logger      *zap.Logger
	runChan     chan *models.ImportRun
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	dropped     int
	mu          sync.Mutex
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the run buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewRecorder creates a new Recorder instance
func NewRecorder(runs repositories.ImportRunRepository, logger *zap.Logger, config Config) *Recorder {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	return &Recorder{
		runs:        runs,
		logger:      logger,
		runChan:     make(chan *models.ImportRun, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("import run recorder already started")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started import run recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop drains pending runs, giving up after timeout
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("import run recorder not running")
	}
	r.stopped = true
	close(r.runChan)
	r.mu.Unlock()

	r.logger.Info("stopping import run recorder", zap.Int("pending_runs", len(r.runChan)))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("import run recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("import run recorder stop timeout after %v", timeout)
	}
}

// Record queues run without blocking. A full buffer drops the run.
func (r *Recorder) Record(run *models.ImportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return fmt.Errorf("import run recorder not running")
	}

	select {
	case r.runChan <- run:
		return nil
	default:
		r.dropped++
		r.logger.Warn("import run buffer full, dropping run",
			zap.String("collection", run.Collection),
			zap.String("trigger", string(run.Trigger)))
		return fmt.Errorf("import run buffer full")
	}
}

// Recent returns the newest recorded runs
func (r *Recorder) Recent(ctx context.Context, collection string, limit int) ([]*models.ImportRun, error) {
	return r.runs.ListRecent(ctx, collection, limit)
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for run := range r.runChan {
		if err := r.persist(run); err != nil {
			r.logger.Error("failed to record import run",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("collection", run.Collection),
				zap.String("run_id", run.ID.String()))
		}
	}
}

func (r *Recorder) persist(run *models.ImportRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

// GetStats returns statistics about the recorder
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BufferSize:  r.bufferSize,
		PendingRuns: len(r.runChan),
		WorkerCount: r.workerCount,
		Dropped:     r.dropped,
		Started:     r.started && !r.stopped,
	}
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize  int  `json:"bufferSize"`
	PendingRuns int  `json:"pendingRuns"`
	WorkerCount int  `json:"workerCount"`
	Dropped     int  `json:"dropped"`
	Started     bool `json:"started"`
}
