package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Warehouse.LockTimeout)
	assert.Equal(t, 3, cfg.Warehouse.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CatalogTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FREIGHTDESK_STORAGE_DRIVER", "Postgres")
	t.Setenv("FREIGHTDESK_DATABASE_URL", "postgres://localhost/freightdesk")
	t.Setenv("FREIGHTDESK_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FREIGHTDESK_LOCK_TIMEOUT", "750ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/freightdesk", cfg.Storage.CatalogURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Warehouse.LockTimeout)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "freightdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nmax_attempts: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Warehouse.MaxAttempts)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FREIGHTDESK_STORAGE_DRIVER", "postgres")
	t.Setenv("FREIGHTDESK_LOG_FORMAT", "xml")
	t.Setenv("FREIGHTDESK_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "log format")
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS")
}
