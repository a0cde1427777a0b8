package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/config"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"LOGGING_LEVEL", "SERVER_PORT", "SERVER_SHUTDOWN_TIMEOUT",
		"STORE_DRIVER", "STORE_SQLITE_PATH", "STORE_SEED_DEMO",
		"LEAVE_ANNUAL_ALLOTMENT", "LEAVE_DEFAULT_BALANCE", "LEAVE_OVERLAP_IGNORES_CLOSED",
		"RATELIMIT_RPS", "RATELIMIT_BURST", "CORS_ALLOWED_ORIGINS",
	} {
		unsetEnv(t, k)
	}
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := config.Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "leave.db", cfg.Store.SQLitePath)
	assert.False(t, cfg.Store.SeedDemo)
	assert.Equal(t, 20.0, cfg.Leave.AnnualAllotment)
	assert.Equal(t, 20.0, cfg.Leave.DefaultBalance)
	assert.False(t, cfg.Leave.OverlapIgnoresClosed)
	assert.Equal(t, 10.0, cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, ":8080", cfg.ServerAddr())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LEAVE_OVERLAP_IGNORES_CLOSED", "true")
	t.Setenv("LEAVE_ANNUAL_ALLOTMENT", "25")

	cfg, err := config.Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Leave.OverlapIgnoresClosed)
	assert.Equal(t, 25.0, cfg.Leave.AnnualAllotment)
}

func TestLoad_EnvFileFillsUnsetVariables(t *testing.T) {
	// GIVEN: a .env file with a secret and a port, and PORT already set
	// THEN: the file supplies the secret, the environment keeps the port
	unsetEnv(t, "AUTH_JWT_SECRET")
	unsetEnv(t, "STORE_DRIVER")
	t.Setenv("SERVER_PORT", "7000")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AUTH_JWT_SECRET=from-file\nSERVER_PORT=6000\n"), 0o600))

	cfg, err := config.Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":    {"AUTH_JWT_SECRET": ""},
		"unknown driver":    {"AUTH_JWT_SECRET": "s", "STORE_DRIVER": "mysql"},
		"postgres sans dsn": {"AUTH_JWT_SECRET": "s", "STORE_DRIVER": "postgres", "POSTGRES_DSN": ""},
		"zero allotment":    {"AUTH_JWT_SECRET": "s", "STORE_DRIVER": "memory", "LEAVE_ANNUAL_ALLOTMENT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}
