package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/matanuska/fleetsync/app"
	"github.com/matanuska/fleetsync/handlers"
	fsmw "github.com/matanuska/fleetsync/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(fsmw.RequestTags(logger))
	r.Use(fsmw.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "https://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			fsmw.AppCheckHeader, fsmw.SourceHeader, fsmw.DiagnosticHeader,
		},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var store handlers.StoreChecker
	if deps.DB != nil {
		store = deps.DB
	}
	health := handlers.NewHealthHandler(store, deps.Runs, logger)
	imports := handlers.NewImportHandler(deps.Importer, logger)
	records := handlers.NewRecordsHandler(deps.Records, logger)
	webBook := handlers.NewWebBookHandler(deps.Scheduler, logger)
	diag := handlers.NewDiagnosticsHandler(deps.Prober, cfg.Diagnostics.BaseURL, cfg.Diagnostics.AllowedBaseURLs, logger)
	runs := handlers.NewRunsHandler(deps.Runs, logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Webhooks answer 405 and preflight themselves
	r.HandleFunc("/importTripsWebhook", imports.HandleTripsWebhook)
	r.HandleFunc("/importDriverBehaviorWebhook", imports.HandleDriverBehaviorWebhook)
	r.Post("/telematicsTripUpdateWebhook", records.HandleTelematics)

	// Callable functions (App Check attested)
	r.Route("/callable", func(r chi.Router) {
		appCheck := deps.AppCheck.WithErrorResponder(func(w http.ResponseWriter, _ *http.Request, err error) {
			handlers.HandleCallableError(w, err, logger)
		})
		r.Use(appCheck.Require)
		r.Post("/importTripsFromWebBook", imports.HandleTripsFromWebBook)
		r.Post("/createDieselRecord", records.HandleCreateDiesel)
		r.Post("/createActionItem", records.HandleCreateActionItem)
		r.Post("/upsertSystemCostRates", records.HandleUpsertCostRates)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", records.HandleListInventory)
			r.Post("/import", imports.HandleInventoryCSV)
			r.Get("/{id}", records.HandleGetInventory)
			r.Put("/{id}", records.HandleUpdateInventory)
			r.Delete("/{id}", records.HandleDeleteInventory)
		})

		r.Route("/webbook", func(r chi.Router) {
			r.Get("/status", webBook.HandleStatus)
			r.Post("/{job}/run", webBook.HandleRun)
		})

		r.Route("/diagnostics", func(r chi.Router) {
			r.Get("/report", diag.HandleReport)
			r.Get("/log", diag.HandleLog)
			r.Post("/run", diag.HandleRun)
			r.Post("/validate", diag.HandleValidate)
		})

		r.Get("/import-runs", runs.HandleList)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
