package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearRosterlinkEnv unsets every ROSTERLINK_ variable for the duration of the test
func clearRosterlinkEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "ROSTERLINK_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearRosterlinkEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "rosterlink", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "rosterlink", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 20, cfg.Facilities.ResourceAPI.MaxPages)
		assert.Equal(t, 50, cfg.Facilities.Storefront.MaxOrderDetails)
		assert.Equal(t, 10, cfg.Facilities.Storefront.CatalogDetailLimit)
		assert.Equal(t, "__RequestVerificationToken", cfg.Facilities.Storefront.CSRFFieldName)
		assert.Equal(t, 2*time.Second, cfg.Sync.DebounceDelay)
		assert.Equal(t, 100*time.Millisecond, cfg.Sync.SettleDelay)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("loads values from environment variables with ROSTERLINK prefix", func(t *testing.T) {
		clearRosterlinkEnv(t)
		t.Setenv("ROSTERLINK_APP_PORT", "9000")
		t.Setenv("ROSTERLINK_DATABASE_HOST", "testdb.local")
		t.Setenv("ROSTERLINK_FACILITIES_STOREFRONT_BASE_URL", "https://shop.example.com")
		t.Setenv("ROSTERLINK_FACILITIES_STOREFRONT_MAX_ORDER_DETAILS", "5")
		t.Setenv("ROSTERLINK_SYNC_DEBOUNCE_DELAY", "5s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, "https://shop.example.com", cfg.Facilities.Storefront.BaseURL)
		assert.Equal(t, 5, cfg.Facilities.Storefront.MaxOrderDetails)
		assert.Equal(t, 5*time.Second, cfg.Sync.DebounceDelay)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearRosterlinkEnv(t)
		t.Setenv("ROSTERLINK_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ROSTERLINK_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("settle delay must be shorter than debounce delay", func(t *testing.T) {
		clearRosterlinkEnv(t)
		t.Setenv("ROSTERLINK_SYNC_DEBOUNCE_DELAY", "100ms")
		t.Setenv("ROSTERLINK_SYNC_SETTLE_DELAY", "200ms")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.settle_delay")
	})

	t.Run("archive requires bucket when enabled", func(t *testing.T) {
		clearRosterlinkEnv(t)
		t.Setenv("ROSTERLINK_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive.bucket")
	})
}

func TestLoadFile(t *testing.T) {
	clearRosterlinkEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "rosterctl.toml")
	content := `
[client]
server_url = "https://sync.example.com"
state_path = "/tmp/state.db"

[facilities.resource_api]
base_url = "https://api.example.com"
page_size = 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", cfg.Client.ServerURL)
	assert.Equal(t, "/tmp/state.db", cfg.Client.StatePath)
	assert.Equal(t, "https://api.example.com", cfg.Facilities.ResourceAPI.BaseURL)
	assert.Equal(t, 25, cfg.Facilities.ResourceAPI.PageSize)

	_, err = LoadFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearRosterlinkEnv(t)
		t.Setenv("ROSTERLINK_APP_ENV", "production")
		t.Setenv("ROSTERLINK_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("ROSTERLINK_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ROSTERLINK_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("ROSTERLINK_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ROSTERLINK_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ROSTERLINK_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
