package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    failed_logins INTEGER NOT NULL DEFAULT 0 CHECK (failed_logins >= 0),
    locked_until  DATETIME,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS branches (
    id         INTEGER PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
    id         INTEGER PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    branch_id   INTEGER REFERENCES branches(id),
    category_id INTEGER REFERENCES categories(id),
    type_seq    INTEGER CHECK (type_seq > 0),
    item_code   TEXT UNIQUE,
    title       TEXT NOT NULL,
    metal       TEXT,
    karat       INTEGER NOT NULL DEFAULT 0,
    weight      TEXT NOT NULL DEFAULT '0',
    condition   TEXT NOT NULL DEFAULT 'new' CHECK (condition IN ('new', 'used')),
    status      TEXT NOT NULL DEFAULT 'in_stock' CHECK (status IN ('in_stock', 'reserved', 'sold', 'repair')),
    image       BLOB,
    image_mime  TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  DATETIME,
    CHECK ((type_seq IS NULL) = (item_code IS NULL))
);

CREATE TABLE IF NOT EXISTS sequence_counters (
    branch_id   INTEGER NOT NULL REFERENCES branches(id),
    category_id INTEGER NOT NULL REFERENCES categories(id),
    last_seq    INTEGER NOT NULL CHECK (last_seq >= 0),
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (branch_id, category_id)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// indexes holds indexes and triggers. They reference columns that older
// databases only get from Migrate, so they are applied after the tables.
const indexes = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_pair_seq
    ON items(branch_id, category_id, type_seq) WHERE type_seq IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_items_missing_code
    ON items(created_at, id) WHERE item_code IS NULL;

CREATE TRIGGER IF NOT EXISTS trg_items_code_immutable
BEFORE UPDATE OF branch_id, category_id, type_seq, item_code ON items
WHEN OLD.item_code IS NOT NULL AND (
    NEW.item_code IS NOT OLD.item_code OR
    NEW.type_seq IS NOT OLD.type_seq OR
    NEW.branch_id IS NOT OLD.branch_id OR
    NEW.category_id IS NOT OLD.category_id)
BEGIN
    SELECT RAISE(ABORT, 'item code is immutable');
END;

CREATE TRIGGER IF NOT EXISTS trg_branches_code_immutable
BEFORE UPDATE OF code ON branches
WHEN NEW.code IS NOT OLD.code
BEGIN
    SELECT RAISE(ABORT, 'branch code is immutable');
END;

CREATE TRIGGER IF NOT EXISTS trg_categories_code_immutable
BEFORE UPDATE OF code ON categories
WHEN NEW.code IS NOT OLD.code
BEGIN
    SELECT RAISE(ABORT, 'category code is immutable');
END;
`

// EnsureSchema creates all tables, indexes and triggers if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return ensureIndexes(db)
}

func ensureIndexes(db *sql.DB) error {
	if _, err := db.Exec(indexes); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}
