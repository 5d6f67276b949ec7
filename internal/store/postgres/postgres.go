// Package postgres is the PostgreSQL backend. It serves the same interfaces
// as store.SQLite; reservations lock the pair's counter row with
// SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erazemk/nakit/internal/model"
)

// Store is a PostgreSQL-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to url, registers the NUMERIC codec and applies the schema.
func Open(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    failed_logins INTEGER NOT NULL DEFAULT 0 CHECK (failed_logins >= 0),
    locked_until  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS branches (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS items (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    branch_id   BIGINT REFERENCES branches(id),
    category_id BIGINT REFERENCES categories(id),
    type_seq    BIGINT CHECK (type_seq > 0),
    item_code   TEXT UNIQUE,
    title       TEXT NOT NULL,
    metal       TEXT NOT NULL DEFAULT '',
    karat       INTEGER NOT NULL DEFAULT 0,
    weight      NUMERIC(10, 3) NOT NULL DEFAULT 0,
    condition   TEXT NOT NULL DEFAULT 'new' CHECK (condition IN ('new', 'used')),
    status      TEXT NOT NULL DEFAULT 'in_stock' CHECK (status IN ('in_stock', 'reserved', 'sold', 'repair')),
    image       BYTEA,
    image_mime  TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at  TIMESTAMPTZ,
    CHECK ((type_seq IS NULL) = (item_code IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_pair_seq
    ON items(branch_id, category_id, type_seq) WHERE type_seq IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_items_missing_code
    ON items(created_at, id) WHERE item_code IS NULL;

CREATE TABLE IF NOT EXISTS sequence_counters (
    branch_id   BIGINT NOT NULL REFERENCES branches(id),
    category_id BIGINT NOT NULL REFERENCES categories(id),
    last_seq    BIGINT NOT NULL CHECK (last_seq >= 0),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (branch_id, category_id)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE OR REPLACE FUNCTION nakit_item_code_immutable() RETURNS trigger AS $$
BEGIN
    IF OLD.item_code IS NOT NULL AND (
        NEW.item_code IS DISTINCT FROM OLD.item_code OR NEW.type_seq IS DISTINCT FROM OLD.type_seq OR
        NEW.branch_id IS DISTINCT FROM OLD.branch_id OR NEW.category_id IS DISTINCT FROM OLD.category_id) THEN
        RAISE EXCEPTION 'item code is immutable' USING ERRCODE = 'check_violation';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_items_code_immutable ON items;
CREATE TRIGGER trg_items_code_immutable BEFORE UPDATE ON items
    FOR EACH ROW EXECUTE FUNCTION nakit_item_code_immutable();
`

// EnsureSchema creates missing tables, indexes and triggers.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// classify maps PostgreSQL errors onto the model error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return model.Errorf(op, model.ErrConflict, "%s: %s", pgErr.Code, pgErr.Message)
		case "23505": // unique_violation
			return model.Errorf(op, model.ErrConflict, "%s", pgErr.Message)
		case "23502", "23503", "23514": // not_null, foreign_key, check
			return model.Errorf(op, model.ErrValidation, "%s", pgErr.Message)
		}
	}
	return model.Unavailable(op, err)
}
