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
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "nakit.sqlite3", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "bcrypt", cfg.Auth.ModernScheme)
	assert.Equal(t, 12*time.Hour, cfg.JWT.Expiry)
	assert.Empty(t, cfg.Backfill.DefaultBranch)
}

func TestLoadPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nakit.yaml")
	err := os.WriteFile(file, []byte(`
http:
  addr: ":9000"
log:
  level: debug
backfill:
  default_branch: HPI
  default_category: rng
`), 0o600)
	require.NoError(t, err)

	t.Setenv("NAKIT_LOG_LEVEL", "warn")
	t.Setenv("NAKIT_AUTH_MODERN_SCHEME", "argon2id")

	cfg, err := Load(file, map[string]any{"http.addr": ":7000"})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr, "flag beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, "argon2id", cfg.Auth.ModernScheme)
	assert.Equal(t, "HPI", cfg.Backfill.DefaultBranch)
	assert.Equal(t, "rng", cfg.Backfill.DefaultCategory)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]any{
		"unknown driver":     {"database.driver": "mysql"},
		"postgres no url":    {"database.driver": "postgres"},
		"half backfill pair": {"backfill.default_branch": "HPI"},
		"zero expiry":        {"jwt.expiry": "0s"},
	}
	for name, overrides := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load("", overrides)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
