package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		"STORAGE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "PORT", "JWT_SECRET", "DEV_MODE",
		"ALLOCATE_MAX_ATTEMPTS", "ALLOCATE_RATE_PER_MIN", "LOW_STOCK_THRESHOLD", "CHANNELS_FILE",
		"SEALING_IDENTITY", "ALLOW_ORIGINS", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD",
		"NOTIFY_FROM", "NOTIFY_TO", "NOTIFY_INTERVAL",
	} {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_URL": "postgres://pool:pw@localhost:5432/slotkeeper?sslmode=disable",
		"JWT_SECRET":   "secret",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.AllocateMaxAttempts)
	assert.Equal(t, 60, cfg.AllocateRatePerMin)
	assert.Equal(t, 3, cfg.LowStockThreshold)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 15*time.Minute, cfg.NotifyInterval)
	assert.False(t, cfg.DevMode)
	assert.Empty(t, cfg.NotifyTo)
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STORAGE_DRIVER":        "SQLite",
		"SQLITE_PATH":           "/tmp/pool.db",
		"JWT_SECRET":            "secret",
		"PORT":                  "9000",
		"DEV_MODE":              "true",
		"ALLOCATE_MAX_ATTEMPTS": "6",
		"LOW_STOCK_THRESHOLD":   "0",
		"NOTIFY_TO":             "ops@example.com, lead@example.com,",
		"NOTIFY_INTERVAL":       "90s",
		"ALLOW_ORIGINS":         "https://desk.example.com",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "/tmp/pool.db", cfg.SQLitePath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 6, cfg.AllocateMaxAttempts)
	assert.Equal(t, 0, cfg.LowStockThreshold)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.NotifyTo)
	assert.Equal(t, 90*time.Second, cfg.NotifyInterval)
	assert.Equal(t, []string{"https://desk.example.com"}, cfg.AllowOrigins)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"JWT_SECRET": "s"}},
		{"missing jwt secret", map[string]string{"STORAGE_DRIVER": "memory"}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "mongo", "JWT_SECRET": "s"}},
		{"bad attempts", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "ALLOCATE_MAX_ATTEMPTS": "0"}},
		{"non-numeric rate", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "ALLOCATE_RATE_PER_MIN": "lots"}},
		{"negative threshold", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "LOW_STOCK_THRESHOLD": "-1"}},
		{"bad interval", map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "NOTIFY_INTERVAL": "soon"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setEnv(t, tc.env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
