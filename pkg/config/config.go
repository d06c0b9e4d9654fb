package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgREST = "postgrest"
	StoreDriverPostgres  = "postgres"
)

// Config holds all application configuration
type Config struct {
	Run           RunConfig
	Store         StoreConfig
	Database      DatabaseConfig
	Batch         BatchConfig
	Storage       StorageConfig
	Fetch         FetchConfig
	Observability ObservabilityConfig
	Notify        NotifyConfig
	Schedule      ScheduleConfig
}

// RunConfig is the default run metadata. CLI flags override it.
type RunConfig struct {
	SupplierSlug string
	SupplierName string
	VersionDate  string
	SignedURL    string
	SourcePath   string
	ReplaceMode  string
	LayoutsFile  string
}

type StoreConfig struct {
	Driver            string
	SupabaseURL       string
	ServiceKey        string
	CatalogTable      string
	SuppliersTable    string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

type BatchConfig struct {
	Size            int
	FlushEveryPages int
}

type StorageConfig struct {
	Type          string
	Bucket        string
	LocalPath     string
	ArchiveParsed bool
	SignExpiry    time.Duration
}

type FetchConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

type ObservabilityConfig struct {
	LogLevel       string
	PushgatewayURL string
	MetricsAddr    string
}

type NotifyConfig struct {
	ResendAPIKey string
	From         string
	To           []string
}

type ScheduleConfig struct {
	Cron string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Run: RunConfig{
			SupplierSlug: getEnv("SUPPLIER_SLUG", ""),
			SupplierName: getEnv("SUPPLIER_NAME", ""),
			VersionDate:  getEnv("VERSION_DATE", ""),
			SignedURL:    getEnv("SIGNED_URL", ""),
			SourcePath:   getEnv("SOURCE_PATH", ""),
			ReplaceMode:  getEnv("REPLACE_MODE", "replace"),
			LayoutsFile:  getEnv("LAYOUTS_FILE", ""),
		},
		Store: StoreConfig{
			Driver:            strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgREST)),
			SupabaseURL:       getEnv("SUPABASE_URL", ""),
			ServiceKey:        getEnv("SUPABASE_SERVICE_KEY", ""),
			CatalogTable:      getEnv("CATALOG_TABLE", "catalog_items"),
			SuppliersTable:    getEnv("SUPPLIERS_TABLE", "suppliers"),
			RequestsPerSecond: getEnvAsFloat("STORE_RPS", 10),
			Timeout:           getEnvAsDuration("STORE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "catalog"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 4),
		},
		Batch: BatchConfig{
			Size:            getEnvAsInt("BATCH_SIZE", 500),
			FlushEveryPages: getEnvAsInt("FLUSH_EVERY_PAGES", 25),
		},
		Storage: StorageConfig{
			Type:          strings.ToLower(getEnv("STORAGE_TYPE", "local")),
			Bucket:        getEnv("STORAGE_BUCKET", "price-lists"),
			LocalPath:     getEnv("STORAGE_LOCAL_PATH", "./data"),
			ArchiveParsed: getEnvAsBool("ARCHIVE_PARSED", false),
			SignExpiry:    getEnvAsDuration("STORAGE_SIGN_EXPIRY", time.Hour),
		},
		Fetch: FetchConfig{
			Timeout:  getEnvAsDuration("FETCH_TIMEOUT", 600*time.Second),
			MaxBytes: int64(getEnvAsInt("FETCH_MAX_MB", 512)) << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			MetricsAddr:    getEnv("METRICS_ADDR", ""),
		},
		Notify: NotifyConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("NOTIFY_FROM", ""),
			To:           getEnvAsList("NOTIFY_TO"),
		},
		Schedule: ScheduleConfig{
			Cron: getEnv("INGEST_CRON", "0 3 * * *"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgREST:
		if c.Store.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required for the postgrest store")
		}
		if c.Store.ServiceKey == "" {
			return errors.New("SUPABASE_SERVICE_KEY is required for the postgrest store")
		}
	case StoreDriverPostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", StoreDriverPostgREST, StoreDriverPostgres, c.Store.Driver)
	}

	if c.Storage.Type == "supabase" && c.Store.SupabaseURL == "" {
		return errors.New("SUPABASE_URL is required for supabase storage")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Batch.Size)
	}
	if c.Notify.ResendAPIKey != "" && len(c.Notify.To) > 0 && c.Notify.From == "" {
		return errors.New("NOTIFY_FROM is required when notifications are enabled")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") and bare seconds ("600").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
