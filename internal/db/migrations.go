package db

import (
	"database/sql"
	"fmt"
)

// column is a column that older databases may be missing.
type column struct {
	table string
	name  string
	ddl   string
}

// addedColumns are columns introduced after the first release. Databases
// imported from the previous inventory tool have items without codes and
// users without login counters.
var addedColumns = []column{
	{"users", "failed_logins", "INTEGER NOT NULL DEFAULT 0"},
	{"users", "locked_until", "DATETIME"},
	{"items", "type_seq", "INTEGER"},
	{"items", "item_code", "TEXT"},
}

// migrations is a list of SQL statements applied in order after the columns
// above exist. Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: soft-deleted usernames can be reused.
	`DROP INDEX IF EXISTS sqlite_autoindex_users_1`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
	     ON users(username) WHERE deleted_at IS NULL`,
	// Migration 2: item codes are unique even when added by ALTER TABLE,
	// which cannot carry a UNIQUE constraint.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_item_code
	     ON items(item_code) WHERE item_code IS NOT NULL`,
}

// Migrate brings an existing database up to the current schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for _, c := range addedColumns {
		if err := addColumnIfMissing(db, c); err != nil {
			return err
		}
	}

	if err := ensureIndexes(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}

func addColumnIfMissing(db *sql.DB, c column) error {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.name,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting %s.%s: %w", c.table, c.name, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, c.table, c.name, c.ddl)); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", c.table, c.name, err)
	}
	return nil
}
