// Package config loads nakit settings from defaults, an optional config
// file, NAKIT_* environment variables and command-line overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Log      LogConfig
	Admin    AdminConfig
	Auth     AuthConfig
	Backfill BackfillConfig
	JWT      JWTConfig
}

// DatabaseConfig selects the store. Driver is "sqlite" (Path) or
// "postgres" (URL).
type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string
	Path  string
}

// AdminConfig names the account created on first start.
type AdminConfig struct {
	Username string
}

// AuthConfig selects the modern password hashing scheme.
type AuthConfig struct {
	ModernScheme string
	BcryptCost   int
}

// BackfillConfig names, by code, the branch and category given to items
// that reach backfill without one. Empty means such items are reported as
// failures.
type BackfillConfig struct {
	DefaultBranch   string
	DefaultCategory string
}

// JWTConfig configures API tokens.
type JWTConfig struct {
	Expiry time.Duration
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "nakit.sqlite3")
	v.SetDefault("database.url", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("auth.modern_scheme", "bcrypt")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("backfill.default_branch", "")
	v.SetDefault("backfill.default_category", "")
	v.SetDefault("jwt.expiry", "12h")
}

// Load reads the configuration. file may be empty. overrides hold values
// from explicitly set command-line flags, keyed like "http.addr".
func Load(file string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NAKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			Path:   v.GetString("database.path"),
			URL:    v.GetString("database.url"),
		},
		HTTP: HTTPConfig{Addr: v.GetString("http.addr")},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			Path:  v.GetString("log.path"),
		},
		Admin: AdminConfig{Username: v.GetString("admin.username")},
		Auth: AuthConfig{
			ModernScheme: v.GetString("auth.modern_scheme"),
			BcryptCost:   v.GetInt("auth.bcrypt_cost"),
		},
		Backfill: BackfillConfig{
			DefaultBranch:   v.GetString("backfill.default_branch"),
			DefaultCategory: v.GetString("backfill.default_category"),
		},
		JWT: JWTConfig{Expiry: v.GetDuration("jwt.expiry")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up later.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if (c.Backfill.DefaultBranch == "") != (c.Backfill.DefaultCategory == "") {
		return fmt.Errorf("backfill.default_branch and backfill.default_category must be set together")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("jwt.expiry must be positive")
	}
	return nil
}
