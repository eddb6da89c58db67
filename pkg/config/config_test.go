package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"places-cache/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PLACES_API_KEY", "GOOGLE_PLACES_API_KEY", "PLACES_BASE_URL", "STORE_DRIVER",
		"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "CLEANUP_SCHEDULE",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_DEV", "PORT",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Places.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Lookup.RecommendationsTTL)
	assert.Equal(t, 180*24*time.Hour, cfg.Lookup.BusinessTTL)
	assert.Equal(t, 20, cfg.Lookup.MaxBatchSize)
	assert.Equal(t, "@every 1h", cfg.Cleanup.Schedule)
	assert.Equal(t, store.DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Store.Memory.Enabled)
	assert.Equal(t, "places:", cfg.Store.Redis.KeyPrefix)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  address: ":9090"
places:
  apiKey: file-key
  timeout: 3s
store:
  driver: sqlite3
  dsn: "file:places.db"
  memory:
    enabled: false
metrics:
  enabled: false
lookup:
  maxBatchSize: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "file-key", cfg.Places.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Places.Timeout)
	assert.Equal(t, store.DriverSQLite, cfg.Store.Driver)
	assert.False(t, cfg.Store.Memory.Enabled, "explicit false must survive defaults")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 10, cfg.Lookup.MaxBatchSize)
	// untouched fields keep defaults
	assert.Equal(t, 20, cfg.Lookup.DetailsConcurrency)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
}

func TestLoadNoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Places.APIKey)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "store:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "dsn is required")
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"PLACES_API_KEY": "env-key",
		"PORT":           "3001",
		"STORE_DRIVER":   "postgres",
		"DATABASE_URL":   "postgres://localhost/places",
		"REDIS_ADDR":     "localhost:6379",
		"LOG_DEV":        "true",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "env-key", cfg.Places.APIKey)
	assert.Equal(t, ":3001", cfg.Server.Address)
	assert.Equal(t, store.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/places", cfg.Store.DSN)
	assert.True(t, cfg.Store.Redis.Enabled())
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Error(t, cfg.ApplyEnv(func(name string) (string, bool) {
		if name == "PORT" {
			return "http", true
		}
		return "", false
	}))
	assert.Error(t, cfg.ApplyEnv(func(name string) (string, bool) {
		if name == "LOG_DEV" {
			return "maybe", true
		}
		return "", false
	}))
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Store.Driver = "mongo"
	cfg.Server.Address = ""
	cfg.Cleanup.Schedule = "not a schedule"

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown driver")
	assert.ErrorContains(t, err, "server.address")
}
