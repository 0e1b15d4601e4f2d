package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/observability"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	RBAC          RBACConfig
	Export        ExportConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Per-admin request limit; zero disables rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds the RBAC database settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite3
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Timeout         time.Duration
}

// CacheConfig selects and sizes the snapshot cache
type CacheConfig struct {
	Backend       string
	MaxEntries    int
	TTL           time.Duration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// SingleReplica acknowledges that only one process serves this database.
	// The memory backend is refused without it: invalidation stays in-process,
	// so other replicas would keep serving revoked access until their TTL expires.
	SingleReplica bool
}

// RBACConfig holds authorization settings
type RBACConfig struct {
	// CatalogFile overrides the built-in permission catalog when set
	CatalogFile string

	// IdentityHeader carries the user id set by the upstream session provider
	IdentityHeader string

	// BootstrapAdmin is given the system role on startup when set
	BootstrapAdmin string

	// WatchCatalog reinstalls CatalogFile whenever it changes on disk
	WatchCatalog bool
}

// ExportConfig controls the periodic RBAC snapshot export
type ExportConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	KeyPrefix string
	// Schedule is a cron expression; empty disables the export
	Schedule     string
	UsePathStyle bool

	// Static credentials for MinIO or explicit keys; empty uses the default chain
	AccessKey string
	SecretKey string
}

// Enabled reports whether snapshot export is configured
func (e ExportConfig) Enabled() bool {
	return e.Bucket != ""
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		RBAC:          loadRBACConfig(),
		Export:        loadExportConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("STOREADMIN_HOST", "0.0.0.0"),
		Port:            getEnv("STOREADMIN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("STOREADMIN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("STOREADMIN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("STOREADMIN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("STOREADMIN_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("STOREADMIN_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("STOREADMIN_HEALTH_PORT", "9090"),

		RateLimitPerMinute: getEnvInt("STOREADMIN_RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("STOREADMIN_RATE_LIMIT_BURST", 50),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("STOREADMIN_DB_DRIVER", "postgres"),
		DSN:             getEnv("STOREADMIN_DB_DSN", ""),
		MaxOpenConns:    getEnvInt("STOREADMIN_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("STOREADMIN_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("STOREADMIN_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		Timeout:         getEnvDuration("STOREADMIN_DB_TIMEOUT", 5*time.Second),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:       strings.ToLower(getEnv("STOREADMIN_CACHE_BACKEND", CacheNone)),
		MaxEntries:    getEnvInt("STOREADMIN_CACHE_MAX_ENTRIES", 1024),
		TTL:           getEnvDuration("STOREADMIN_CACHE_TTL", 5*time.Minute),
		RedisURL:      getEnv("STOREADMIN_REDIS_URL", ""),
		RedisPassword: getEnv("STOREADMIN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("STOREADMIN_REDIS_DB", 0),
		SingleReplica: getEnvBool("STOREADMIN_CACHE_SINGLE_REPLICA", false),
	}
}

func loadRBACConfig() RBACConfig {
	return RBACConfig{
		CatalogFile:    getEnv("STOREADMIN_CATALOG_FILE", ""),
		IdentityHeader: getEnv("STOREADMIN_IDENTITY_HEADER", "X-Admin-User-ID"),
		BootstrapAdmin: getEnv("STOREADMIN_BOOTSTRAP_ADMIN", ""),
		WatchCatalog:   getEnvBool("STOREADMIN_CATALOG_WATCH", true),
	}
}

func loadExportConfig() ExportConfig {
	return ExportConfig{
		Bucket:       getEnv("STOREADMIN_EXPORT_BUCKET", ""),
		Region:       getEnv("STOREADMIN_EXPORT_REGION", "us-east-1"),
		Endpoint:     getEnv("STOREADMIN_EXPORT_ENDPOINT", ""),
		KeyPrefix:    getEnv("STOREADMIN_EXPORT_PREFIX", "rbac-snapshots"),
		Schedule:     getEnv("STOREADMIN_EXPORT_SCHEDULE", ""),
		UsePathStyle: getEnvBool("STOREADMIN_EXPORT_PATH_STYLE", false),
		AccessKey:    getEnv("STOREADMIN_EXPORT_ACCESS_KEY", ""),
		SecretKey:    getEnv("STOREADMIN_EXPORT_SECRET_KEY", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("STOREADMIN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("STOREADMIN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("STOREADMIN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("STOREADMIN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("STOREADMIN_OTEL_SERVICE_NAME", "storeadmin"),
		OTelServiceVersion: getEnv("STOREADMIN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("STOREADMIN_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("STOREADMIN_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	switch c.Cache.Backend {
	case CacheNone:
	case CacheMemory:
		if !c.Cache.SingleReplica {
			return fmt.Errorf("memory cache backend requires STOREADMIN_CACHE_SINGLE_REPLICA=true; use redis when running more than one replica")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or none)", c.Cache.Backend)
	}

	if c.RBAC.IdentityHeader == "" {
		return fmt.Errorf("identity header is required")
	}

	if c.Export.Schedule != "" && !c.Export.Enabled() {
		return fmt.Errorf("export bucket is required when an export schedule is set")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
