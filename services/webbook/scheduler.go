package webbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matanuska/fleetsync/internal/observability"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/alert"
	"github.com/matanuska/fleetsync/services/importer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is how often each job pulls
const DefaultInterval = 5 * time.Minute

// ErrJobRunning is returned when a run is requested while the job is mid-run
var ErrJobRunning = services.NewDomainError(services.ErrorTypeConflict, "web book job is already running", nil)

// Importer runs the shared pipeline
type Importer interface {
	Import(ctx context.Context, spec importer.ImportSpec, rows []any) (*importer.Summary, error)
}

// Job binds a web book URL to an import spec
type Job struct {
	Name string
	URL  string
	Spec importer.ImportSpec
}

// JobStatus is the last known state of a job
type JobStatus struct {
	Name      string            `json:"name"`
	Enabled   bool              `json:"enabled"`
	Running   bool              `json:"running"`
	LastRun   time.Time         `json:"lastRun,omitempty"`
	LastError string            `json:"lastError,omitempty"`
	Last      *importer.Summary `json:"lastSummary,omitempty"`
}

type jobState struct {
	Job
	run    sync.Mutex
	mu     sync.Mutex
	status JobStatus
}

// Scheduler runs jobs on a ticker. Runs of one job never overlap.
type Scheduler struct {
	fetcher  *Fetcher
	importer Importer
	alerter  alert.Alerter
	runs     importer.RunRecorder
	interval time.Duration
	jobs     map[string]*jobState
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(fetcher *Fetcher, imp Importer, alerter alert.Alerter, interval time.Duration, logger *zap.Logger, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		fetcher:  fetcher,
		importer: imp,
		alerter:  alerter,
		interval: interval,
		jobs:     make(map[string]*jobState, len(jobs)),
		logger:   logger,
	}
	for _, j := range jobs {
		j.Spec.Trigger = models.TriggerScheduled
		s.jobs[j.Name] = &jobState{Job: j, status: JobStatus{Name: j.Name, Enabled: j.URL != ""}}
	}
	return s
}

// WithRecorder records a failed run when a fetch fails before the import starts
func (s *Scheduler) WithRecorder(runs importer.RunRecorder) *Scheduler {
	s.runs = runs
	return s
}

// Run ticks every enabled job until ctx is cancelled. Each job runs once at start.
func (s *Scheduler) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, name := range s.names() {
		js := s.jobs[name]
		if js.URL == "" {
			s.logger.Warn("web book job disabled, no URL configured", zap.String("job", name))
			continue
		}
		eg.Go(func() error {
			s.loop(ctx, js)
			return nil
		})
	}
	s.logger.Info("web book scheduler started", zap.Duration("interval", s.interval))
	return eg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, js)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("web book job stopped", zap.String("job", js.Name))
			return
		case <-ticker.C:
			s.tick(ctx, js)
		}
	}
}

// tick runs the job and alerts on failure; it never returns the error
func (s *Scheduler) tick(ctx context.Context, js *jobState) {
	_, err := s.execute(ctx, js, models.TriggerScheduled)
	if err == nil || errors.Is(err, ErrJobRunning) || ctx.Err() != nil {
		return
	}

	observability.RecordAlert(js.Name)
	a := alert.Alert{
		Source:    "webbook." + js.Name,
		Title:     fmt.Sprintf("scheduled %s import failed", js.Name),
		Message:   services.GetErrorMessage(err),
		ErrorType: string(services.GetErrorType(err)),
		Timestamp: time.Now(),
	}
	if alertErr := s.alerter.Alert(ctx, a); alertErr != nil {
		s.logger.Warn("failed to deliver alert", zap.String("job", js.Name), zap.Error(alertErr))
	}
}

// RunOnce runs a job immediately. It fails with ErrJobRunning if a run is in progress.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (*importer.Summary, error) {
	js, ok := s.jobs[name]
	if !ok {
		return nil, services.NotFoundf("unknown web book job %q", name)
	}
	return s.execute(ctx, js, models.TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, js *jobState, trigger models.ImportTrigger) (*importer.Summary, error) {
	if js.URL == "" {
		return nil, services.ErrSourceDisabled
	}
	if !js.run.TryLock() {
		return nil, ErrJobRunning
	}
	defer js.run.Unlock()
	s.setRunning(js, true)

	sum, err := s.pull(ctx, js, trigger)

	js.mu.Lock()
	js.status.Running = false
	js.status.LastRun = time.Now()
	js.status.LastError = ""
	if err != nil {
		js.status.LastError = err.Error()
	} else {
		js.status.Last = sum
	}
	js.mu.Unlock()
	return sum, err
}

func (s *Scheduler) pull(ctx context.Context, js *jobState, trigger models.ImportTrigger) (*importer.Summary, error) {
	rows, err := s.fetcher.Fetch(ctx, js.URL)
	if err != nil {
		observability.RecordFetch(js.Name, "error")
		s.logger.Error("web book fetch failed", zap.String("job", js.Name), zap.Error(err))
		s.recordFailure(js, trigger, err)
		return nil, err
	}
	observability.RecordFetch(js.Name, "ok")

	spec := js.Spec
	spec.Trigger = trigger
	sum, err := s.importer.Import(ctx, spec, rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("web book sync finished",
		zap.String("job", js.Name),
		zap.Int("imported", sum.Imported),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func (s *Scheduler) recordFailure(js *jobState, trigger models.ImportTrigger, err error) {
	if s.runs == nil {
		return
	}
	run := models.NewImportRun(js.Spec.Collection, trigger, js.Spec.Source).WithError(err).Finish()
	if recErr := s.runs.Record(run); recErr != nil {
		s.logger.Warn("import run not recorded", zap.String("job", js.Name), zap.Error(recErr))
	}
}

func (s *Scheduler) setRunning(js *jobState, running bool) {
	js.mu.Lock()
	js.status.Running = running
	js.mu.Unlock()
}

// Status returns the state of every job, sorted by name
func (s *Scheduler) Status() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, name := range s.names() {
		js := s.jobs[name]
		js.mu.Lock()
		out = append(out, js.status)
		js.mu.Unlock()
	}
	return out
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
