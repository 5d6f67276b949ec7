package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenPathWithURICharacters(t *testing.T) {
	dir := t.TempDir()
	name := "zlatarna?mode=ro#100%.sqlite3"
	database, err := Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Fatalf("database not created under its literal name: %v", err)
	}

	var mode string
	if err := database.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("reading journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestDSNKeepsParamsOutOfPath(t *testing.T) {
	got := dsn("/srv/shop?x=1#y")
	if !strings.HasPrefix(got, "file:/srv/shop%3fx=1%23y?") {
		t.Errorf("dsn = %q", got)
	}
	if strings.Count(got, "?") != 1 || strings.Contains(got, "#") {
		t.Errorf("dsn leaks URI delimiters: %q", got)
	}
}

func TestMigrateLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sqlite3")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	// Shape of the tables written by the previous inventory tool.
	legacy := []string{
		`CREATE TABLE users (
		     id INTEGER PRIMARY KEY, username TEXT NOT NULL, password_hash TEXT NOT NULL,
		     role TEXT NOT NULL DEFAULT 'user', created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		     deleted_at DATETIME)`,
		`CREATE TABLE items (
		     id INTEGER PRIMARY KEY, branch_id INTEGER, category_id INTEGER, title TEXT NOT NULL,
		     metal TEXT, karat INTEGER NOT NULL DEFAULT 0, weight TEXT NOT NULL DEFAULT '0',
		     condition TEXT NOT NULL DEFAULT 'new', status TEXT NOT NULL DEFAULT 'in_stock',
		     image BLOB, image_mime TEXT,
		     created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		     updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP, deleted_at DATETIME)`,
		`INSERT INTO items (title) VALUES ('Old ring')`,
	}
	for _, stmt := range legacy {
		if _, err := database.Exec(stmt); err != nil {
			t.Fatalf("creating legacy schema: %v", err)
		}
	}

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var missing int
	err = database.QueryRow(`SELECT COUNT(*) FROM items WHERE item_code IS NULL AND type_seq IS NULL`).Scan(&missing)
	if err != nil {
		t.Fatalf("querying migrated items: %v", err)
	}
	if missing != 1 {
		t.Errorf("expected 1 item without code, got %d", missing)
	}

	var failed int
	if _, err := database.Exec(`INSERT INTO users (username, password_hash) VALUES ('a', 'x')`); err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	if err := database.QueryRow(`SELECT failed_logins FROM users WHERE username = 'a'`).Scan(&failed); err != nil {
		t.Fatalf("querying failed_logins: %v", err)
	}
	if failed != 0 {
		t.Errorf("expected failed_logins default 0, got %d", failed)
	}
}

func TestItemCodeImmutable(t *testing.T) {
	database := NewTestDB(t)

	stmts := []string{
		`INSERT INTO branches (id, code, name) VALUES (1, 'HPI', 'Main street')`,
		`INSERT INTO categories (id, code, name) VALUES (1, 'rng', 'Rings')`,
		`INSERT INTO items (id, branch_id, category_id, type_seq, item_code, title)
		     VALUES (1, 1, 1, 1, 'HPI-rng-1', 'Ring')`,
	}
	for _, stmt := range stmts {
		if _, err := database.Exec(stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	if _, err := database.Exec(`UPDATE items SET item_code = 'HPI-rng-9', type_seq = 9 WHERE id = 1`); err == nil {
		t.Error("expected error when changing an issued item code")
	}
	if _, err := database.Exec(`UPDATE items SET title = 'Gold ring' WHERE id = 1`); err != nil {
		t.Errorf("descriptive fields must stay mutable: %v", err)
	}
	if _, err := database.Exec(`UPDATE branches SET code = 'XYZ' WHERE id = 1`); err == nil {
		t.Error("expected error when changing a branch code")
	}
}
