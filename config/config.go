package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	StoreDriver   string
	Import        ImportConfig
	WebBook       WebBookConfig
	AppCheck      AppCheckConfig
	Alerts        AlertConfig
	Diagnostics   DiagnosticsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ImportConfig tunes the import pipeline against the store's limits
type ImportConfig struct {
	BatchLimit        int // operations per write chunk
	InClauseLimit     int // keys per existence lookup
	LookupConcurrency int
	RunBufferSize     int
	RunWorkers        int
}

// WebBookConfig configures the scheduled pulls
type WebBookConfig struct {
	TripsURL          string
	DriverBehaviorURL string
	Interval          time.Duration
	Timeout           time.Duration
	Enabled           bool
}

// AppCheckConfig configures callable endpoint attestation
type AppCheckConfig struct {
	Secret   string
	Audience string
	Required bool
}

// AlertConfig configures where failed background work is reported
type AlertConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// DiagnosticsConfig configures the prober. BaseURL defaults to this
// instance on localhost. A run may only target BaseURL or AllowedBaseURLs.
type DiagnosticsConfig struct {
	BaseURL         string
	AllowedBaseURLs []string
	Timeout         time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// fileConfig is the optional YAML overlay named by WEBBOOK_CONFIG_FILE
type fileConfig struct {
	WebBook fileWebBook `yaml:"webbook"`
}

type fileWebBook struct {
	TripsURL          string        `yaml:"trips_url"`
	DriverBehaviorURL string        `yaml:"driver_behavior_url"`
	Interval          time.Duration `yaml:"interval"`
	Timeout           time.Duration `yaml:"timeout"`
	Enabled           *bool         `yaml:"enabled"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads .env, the environment and the optional YAML overlay without validating
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Database:    loadDatabaseConfig(),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		Import: ImportConfig{
			BatchLimit:        getEnvAsInt("IMPORT_BATCH_LIMIT", 500),
			InClauseLimit:     getEnvAsInt("IMPORT_IN_CLAUSE_LIMIT", 30),
			LookupConcurrency: getEnvAsInt("IMPORT_LOOKUP_CONCURRENCY", 4),
			RunBufferSize:     getEnvAsInt("IMPORT_RUN_BUFFER_SIZE", 1000),
			RunWorkers:        getEnvAsInt("IMPORT_RUN_WORKERS", 2),
		},
		AppCheck: AppCheckConfig{
			Secret:   getEnv("APPCHECK_SECRET", ""),
			Audience: getEnv("APPCHECK_AUDIENCE", ""),
			Required: getEnvAsBool("APPCHECK_REQUIRED", true),
		},
		Alerts: AlertConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("ALERT_TIMEOUT", 10*time.Second),
		},
		Diagnostics: DiagnosticsConfig{
			BaseURL:         getEnv("DIAGNOSTICS_BASE_URL", ""),
			AllowedBaseURLs: getEnvAsList("DIAGNOSTICS_ALLOWED_BASE_URLS", nil),
			Timeout:         getEnvAsDuration("DIAGNOSTICS_TIMEOUT", 15*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	webbook := WebBookConfig{Interval: 5 * time.Minute, Timeout: 30 * time.Second, Enabled: true}
	if path := getEnv("WEBBOOK_CONFIG_FILE", ""); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		webbook = mergeWebBook(webbook, fc.WebBook)
	}
	webbook.TripsURL = getEnv("WEBBOOK_TRIPS_URL", webbook.TripsURL)
	webbook.DriverBehaviorURL = getEnv("WEBBOOK_DRIVER_BEHAVIOR_URL", webbook.DriverBehaviorURL)
	webbook.Interval = getEnvAsDuration("WEBBOOK_INTERVAL", webbook.Interval)
	webbook.Timeout = getEnvAsDuration("WEBBOOK_TIMEOUT", webbook.Timeout)
	webbook.Enabled = getEnvAsBool("WEBBOOK_ENABLED", webbook.Enabled)
	cfg.WebBook = webbook

	if cfg.Diagnostics.BaseURL == "" {
		cfg.Diagnostics.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	return cfg, nil
}

func loadFile(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

// mergeWebBook overlays the fields set in the file onto base
func mergeWebBook(base WebBookConfig, file fileWebBook) WebBookConfig {
	if file.TripsURL != "" {
		base.TripsURL = file.TripsURL
	}
	if file.DriverBehaviorURL != "" {
		base.DriverBehaviorURL = file.DriverBehaviorURL
	}
	if file.Interval > 0 {
		base.Interval = file.Interval
	}
	if file.Timeout > 0 {
		base.Timeout = file.Timeout
	}
	if file.Enabled != nil {
		base.Enabled = *file.Enabled
	}
	return base
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case StoreDriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.Import.BatchLimit <= 0 || c.Import.BatchLimit > 500 {
		return fmt.Errorf("import batch limit must be between 1 and 500")
	}
	if c.Import.InClauseLimit <= 0 || c.Import.InClauseLimit > 30 {
		return fmt.Errorf("import in-clause limit must be between 1 and 30")
	}
	if c.Import.LookupConcurrency <= 0 {
		return fmt.Errorf("import lookup concurrency must be positive")
	}

	if c.WebBook.Interval <= 0 {
		return fmt.Errorf("web book interval must be positive")
	}

	if c.AppCheck.Required && c.AppCheck.Secret == "" && c.IsProduction() {
		return fmt.Errorf("app check secret is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "fleet"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "fleetsync"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
