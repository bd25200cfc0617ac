package app

import (
	"context"
	"fmt"
	"time"

	"github.com/matanuska/fleetsync/config"
	"github.com/matanuska/fleetsync/middleware"
	"github.com/matanuska/fleetsync/models"
	"github.com/matanuska/fleetsync/repositories"
	"github.com/matanuska/fleetsync/repositories/memory"
	"github.com/matanuska/fleetsync/repositories/postgres"
	"github.com/matanuska/fleetsync/services/alert"
	"github.com/matanuska/fleetsync/services/audit"
	"github.com/matanuska/fleetsync/services/dedup"
	"github.com/matanuska/fleetsync/services/diagnostics"
	"github.com/matanuska/fleetsync/services/importer"
	"github.com/matanuska/fleetsync/services/records"
	"github.com/matanuska/fleetsync/services/webbook"
	"github.com/matanuska/fleetsync/services/writer"
	"github.com/matanuska/fleetsync/utils"
	"go.uber.org/zap"
)

// Web book job names
const (
	JobTrips          = "trips"
	JobDriverBehavior = "driverBehavior"
)

const recorderStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil with the memory driver
	Logger *zap.Logger

	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Documents  repositories.DocumentRepository
	ImportRuns repositories.ImportRunRepository
	TxManager  repositories.TransactionManager

	// Pipeline
	Gate     *dedup.Gate
	Writer   *writer.Writer
	Runs     *audit.Recorder
	Importer *importer.Service
	Records  *records.Service

	// Background and outbound
	Scheduler *webbook.Scheduler
	Prober    *diagnostics.Prober
	Alerter   alert.Alerter

	AppCheck *middleware.AppCheckMiddleware

	now func() time.Time
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		deps.closeStore()
		return nil, fmt.Errorf("failed to initialize import pipeline: %w", err)
	}

	deps.initBackground(cfg)
	deps.initAppCheck(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("store_driver", cfg.StoreDriver))
	return deps, nil
}

// initStore opens the configured document store
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	var repos *repositories.Repositories

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		repos = memory.NewStore().Repositories()
		d.Logger.Warn("using in-memory store, data is lost on restart")
	case config.StoreDriverPostgres, "":
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.DB = factory.GetDB()

		if err := d.DB.PingContext(ctx); err != nil {
			d.closeStore()
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := factory.InitSchema(ctx); err != nil {
			d.closeStore()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		repos = factory.NewRepositories()

		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	d.Documents = repos.Documents
	d.ImportRuns = repos.ImportRuns
	d.TxManager = repos.TxManager
	return nil
}

// initPipeline builds the gate, writer, run recorder and orchestrator
func (d *Dependencies) initPipeline(cfg *config.Config) error {
	d.Gate = dedup.NewGate(d.Documents, cfg.Import.InClauseLimit, cfg.Import.LookupConcurrency, d.Logger)
	d.Writer = writer.New(d.Documents, d.TxManager, cfg.Import.BatchLimit, d.Logger)

	d.Runs = audit.NewRecorder(d.ImportRuns, d.Logger, audit.Config{
		BufferSize:  cfg.Import.RunBufferSize,
		WorkerCount: cfg.Import.RunWorkers,
	})
	if err := d.Runs.Start(); err != nil {
		return err
	}

	d.Importer = importer.NewService(d.Gate, d.Writer, d.Runs, d.Logger)
	d.Records = records.NewService(d.Documents, d.Logger)

	d.Logger.Info("import pipeline initialized",
		zap.Int("batch_limit", cfg.Import.BatchLimit),
		zap.Int("in_clause_limit", cfg.Import.InClauseLimit))
	return nil
}

// initBackground wires the alerter, the web book scheduler and the prober
func (d *Dependencies) initBackground(cfg *config.Config) {
	d.Alerter = alert.New(cfg.Alerts.WebhookURL, utils.NewHTTPClient(cfg.Alerts.Timeout), d.Logger)

	fetcher := webbook.NewFetcher(utils.NewHTTPClient(cfg.WebBook.Timeout), d.Logger)
	d.Scheduler = webbook.NewScheduler(fetcher, d.Importer, d.Alerter, cfg.WebBook.Interval, d.Logger,
		webbook.Job{
			Name: JobTrips,
			URL:  cfg.WebBook.TripsURL,
			Spec: importer.TripsWebBookSpec(models.TriggerScheduled),
		},
		webbook.Job{
			Name: JobDriverBehavior,
			URL:  cfg.WebBook.DriverBehaviorURL,
			Spec: importer.DriverBehaviorWebBookSpec(d.now, models.TriggerScheduled),
		},
	).WithRecorder(d.Runs)

	d.Prober = diagnostics.NewProber(utils.NewHTTPClient(cfg.Diagnostics.Timeout), d.Logger)
}

func (d *Dependencies) initAppCheck(cfg *config.Config) {
	if cfg.AppCheck.Secret == "" && cfg.AppCheck.Required {
		d.Logger.Warn("app check secret not configured, callable endpoints will reject every request")
	}
	verifier := middleware.NewAppCheckVerifier(cfg.AppCheck.Secret, cfg.AppCheck.Audience)
	d.AppCheck = middleware.NewAppCheckMiddleware(verifier, cfg.AppCheck.Required, d.Logger)
}

// Now returns the clock used for generated timestamps
func (d *Dependencies) Now() time.Time {
	return d.now()
}

// Ping checks the store. The memory store is always ready.
func (d *Dependencies) Ping(ctx context.Context) error {
	if d.DB == nil {
		return nil
	}
	return d.DB.HealthCheck(ctx)
}

func (d *Dependencies) closeStore() error {
	if d.RepoFactory == nil {
		return nil
	}
	err := d.RepoFactory.Close()
	d.RepoFactory = nil
	d.DB = nil
	return err
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain run records before the store goes away
	if d.Runs != nil && d.Runs.GetStats().Started {
		timeout := recorderStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 {
				timeout = remaining
			}
		}
		if err := d.Runs.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop run recorder: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
