package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"WORKFLOW_ADDR", "WORKFLOW_STORE_DRIVER", "DATABASE_URL",
		"WORKFLOW_LOG_LEVEL", "WORKFLOW_LOG_FORMAT", "WORKFLOW_RUN_TIMEOUT", "WORKFLOW_AUTO_MIGRATE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":8080"
store:
  driver: sqlite
  dsn: /tmp/workflows.db
logLevel: debug
runTimeout: 5s
autoMigrate: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/workflows.db", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.RunTimeout)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/wf")
	t.Setenv("WORKFLOW_ADDR", ":9000")
	t.Setenv("WORKFLOW_RUN_TIMEOUT", "1m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/wf", cfg.Store.DSN)
	assert.Equal(t, time.Minute, cfg.RunTimeout)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		clearEnv(t)
		_, err := Load("")
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("unknown driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "x")
		t.Setenv("WORKFLOW_STORE_DRIVER", "mysql")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown store driver")
	})

	t.Run("bad timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "x")
		t.Setenv("WORKFLOW_RUN_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "WORKFLOW_RUN_TIMEOUT")
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read config file")
	})
}
