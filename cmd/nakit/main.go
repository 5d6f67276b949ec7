// Command nakit runs the jewelry inventory server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/nakit/internal/api"
	"github.com/erazemk/nakit/internal/auth"
	"github.com/erazemk/nakit/internal/config"
	"github.com/erazemk/nakit/internal/db"
	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
	"github.com/erazemk/nakit/internal/store"
	"github.com/erazemk/nakit/internal/store/postgres"
)

// backend is everything the binary needs from a store.
type backend interface {
	api.Catalog
	sequence.Store
	auth.CredentialStore
	BranchByCode(ctx context.Context, code string) (*model.Branch, error)
	CategoryByCode(ctx context.Context, code string) (*model.Category, error)
	JWTSecret(ctx context.Context) (string, error)
}

const usage = `Usage: nakit [serve|backfill] [flags]

Commands:
  serve      run the HTTP API (default)
  backfill   assign codes to every item that lacks one and exit

Flags:
  -c, -config <path>      config file (YAML, TOML or JSON)
  -driver <name>          database driver: sqlite or postgres (default: sqlite)
  -d, -db <path>          SQLite database path (default: nakit.sqlite3)
  -database-url <url>     PostgreSQL connection URL
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -log-level <level>      debug, info, warn or error (default: info)
  -h, -help               show this help and exit

Every setting can also be given as NAKIT_<SECTION>_<KEY>, e.g. NAKIT_HTTP_ADDR.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "backfill") {
		command, args = args[0], args[1:]
	}

	configFile, overrides, err := parseFlags(args, stdout, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}

	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger, closeLog, err := setupLogger(cfg.Log.Level, cfg.Log.Path, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, closeStore, err := openBackend(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer closeStore()

	allocator, err := newAllocator(ctx, b, cfg.Backfill, logger)
	if err != nil {
		logger.Error("failed to set up allocator", "error", err)
		return 1
	}

	if command == "backfill" {
		return runBackfill(ctx, allocator, stdout, logger)
	}
	return serve(ctx, cfg, b, allocator, stdout, logger)
}

// parseFlags returns the config file path and the settings given explicitly
// on the command line, keyed like the config file.
func parseFlags(args []string, stdout, stderr io.Writer) (string, map[string]any, error) {
	fs := flag.NewFlagSet("nakit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stdout, usage) }

	var configFile string
	fs.StringVar(&configFile, "config", "", "")
	fs.StringVar(&configFile, "c", "", "")

	// Flag name to config key. Values are only applied when the flag is set,
	// so environment variables and the config file still count.
	keys := map[string]string{
		"driver":       "database.driver",
		"db":           "database.path",
		"d":            "database.path",
		"database-url": "database.url",
		"addr":         "http.addr",
		"a":            "http.addr",
		"user":         "admin.username",
		"u":            "admin.username",
		"log":          "log.path",
		"l":            "log.path",
		"log-level":    "log.level",
	}
	values := make(map[string]*string, len(keys))
	for name := range keys {
		values[name] = fs.String(name, "", "")
	}

	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		return "", nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := keys[f.Name]; ok {
			overrides[key] = *values[f.Name]
		}
	})
	return configFile, overrides, nil
}

// openBackend opens the configured store and brings its schema up to date.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (backend, func(), error) {
	if cfg.Driver == config.DriverPostgres {
		pg, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database ready", "driver", cfg.Driver)
		return pg, pg.Close, nil
	}

	database, err := db.Open(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	logger.Info("database ready", "driver", cfg.Driver, "path", cfg.Path)
	return store.NewSQLite(database), func() { database.Close() }, nil
}

// newAllocator resolves the configured backfill defaults from codes to ids.
func newAllocator(ctx context.Context, b backend, cfg config.BackfillConfig, logger *slog.Logger) (*sequence.Allocator, error) {
	opts := []sequence.Option{sequence.WithLogger(logger)}
	if cfg.DefaultBranch == "" {
		return sequence.New(b, opts...), nil
	}

	branch, err := b.BranchByCode(ctx, cfg.DefaultBranch)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, fmt.Errorf("backfill default branch %q does not exist", cfg.DefaultBranch)
	}
	category, err := b.CategoryByCode(ctx, cfg.DefaultCategory)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("backfill default category %q does not exist", cfg.DefaultCategory)
	}

	opts = append(opts, sequence.WithBackfillDefaults(sequence.Defaults{BranchID: branch.ID, CategoryID: category.ID}))
	return sequence.New(b, opts...), nil
}

func runBackfill(ctx context.Context, allocator *sequence.Allocator, stdout io.Writer, logger *slog.Logger) int {
	report, err := allocator.BackfillAll(ctx)
	if report != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("writing backfill report", "error", err)
			return 1
		}
	}
	if err != nil {
		logger.Error("backfill stopped, rerun to resume", "error", err)
		return 1
	}
	if len(report.Failed) > 0 {
		return 2
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, b backend, allocator *sequence.Allocator, stdout io.Writer, logger *slog.Logger) int {
	hasher, err := auth.NewHasher(cfg.Auth.ModernScheme, cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("invalid auth settings", "error", err)
		return 1
	}
	migrator, err := auth.NewMigrator(b, hasher, auth.WithMigratorLogger(logger))
	if err != nil {
		logger.Error("failed to set up credential migrator", "error", err)
		return 1
	}

	if err := bootstrapAdmin(ctx, b, hasher, cfg.Admin.Username, stdout); err != nil {
		logger.Error("failed to create admin user", "error", err)
		return 1
	}

	// Generated and stored on first start.
	jwtSecret, err := b.JWTSecret(ctx)
	if err != nil {
		logger.Error("failed to get JWT secret", "error", err)
		return 1
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Config{
			Catalog:     b,
			Allocator:   allocator,
			Migrator:    migrator,
			JWTSecret:   jwtSecret,
			TokenExpiry: cfg.JWT.Expiry,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
	}()

	logger.Info("server started", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		return 1
	}

	logger.Info("server stopped, closing database")
	return 0
}

// bootstrapAdmin creates the admin account on an empty user table and
// prints its generated password once.
func bootstrapAdmin(ctx context.Context, b backend, hasher auth.Hasher, username string, stdout io.Writer) error {
	users, err := b.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	if _, err := b.CreateUser(ctx, username, hash, model.RoleAdmin); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Admin account created:")
	fmt.Fprintf(stdout, "  Username: %s\n", username)
	fmt.Fprintf(stdout, "  Password: %s\n", password)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Save this password, it cannot be recovered.")
	fmt.Fprintln(stdout, "The admin can change it after logging in.")
	return nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
