package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.25")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET_STR", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET_BOOL", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_UNSET_DURATION", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STOREADMIN_DB_DSN", "postgres://localhost/storeadmin?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 600, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
	assert.False(t, cfg.Cache.SingleReplica)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.RBAC.WatchCatalog)
	assert.Equal(t, "X-Admin-User-ID", cfg.RBAC.IdentityHeader)
	assert.False(t, cfg.Export.Enabled())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "storeadmin", cfg.Observability.OTelServiceName)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STOREADMIN_PORT", "8000")
	t.Setenv("STOREADMIN_DB_DRIVER", "sqlite3")
	t.Setenv("STOREADMIN_DB_DSN", "file:storeadmin.db")
	t.Setenv("STOREADMIN_CACHE_BACKEND", "Redis")
	t.Setenv("STOREADMIN_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STOREADMIN_IDENTITY_HEADER", "X-User")
	t.Setenv("STOREADMIN_EXPORT_BUCKET", "rbac-backups")
	t.Setenv("STOREADMIN_EXPORT_SCHEDULE", "@hourly")
	t.Setenv("STOREADMIN_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "X-User", cfg.RBAC.IdentityHeader)
	assert.True(t, cfg.Export.Enabled())
	assert.Equal(t, "@hourly", cfg.Export.Schedule)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigMemoryCacheNeedsSingleReplica(t *testing.T) {
	t.Setenv("STOREADMIN_DB_DSN", "postgres://localhost/storeadmin?sslmode=disable")
	t.Setenv("STOREADMIN_CACHE_BACKEND", "memory")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "memory cache backend")

	t.Setenv("STOREADMIN_CACHE_SINGLE_REPLICA", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.True(t, cfg.Cache.SingleReplica)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{Driver: "postgres", DSN: "postgres://x"},
			Cache:    CacheConfig{Backend: CacheMemory, SingleReplica: true},
			RBAC:     RBACConfig{IdentityHeader: "X-Admin-User-ID"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "rate limit"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid database driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "DSN"},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheRedis }, "redis URL"},
		{"memory across replicas", func(c *Config) { c.Cache.SingleReplica = false }, "STOREADMIN_CACHE_SINGLE_REPLICA"},
		{"no identity header", func(c *Config) { c.RBAC.IdentityHeader = "" }, "identity header"},
		{"schedule without bucket", func(c *Config) { c.Export.Schedule = "@daily" }, "export bucket"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "storeadmin"
		}, "endpoint"},
		{"otel bad ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = "localhost:4317"
			c.Observability.OTelServiceName = "storeadmin"
			c.Observability.OTelSampleRatio = 2
		}, "sample ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.wantErr)
		})
	}
}
