package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
)

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite serves the sequence allocator and the credential migrator from a
// database opened with db.Open. Write transactions start with BEGIN
// IMMEDIATE (see db.Open), so two processes reserving for the same pair are
// serialized by the database lock.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite wraps an open database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

// classify maps driver errors onto the model error kinds. A busy or locked
// database after the busy timeout, or a uniqueness violation from a racing
// writer, is a conflict the caller may retry. Check, foreign key and trigger
// violations are validation errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return model.Errorf(op, model.ErrValidation, "%v", se)
		}
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return model.Errorf(op, model.ErrConflict, "database busy: %v", se)
		case sqlite3.SQLITE_CONSTRAINT:
			return model.Errorf(op, model.ErrConflict, "%v", se)
		}
	}
	return model.Unavailable(op, err)
}

func (s *SQLite) Branch(ctx context.Context, id int64) (*model.Branch, error) {
	b, err := GetBranch(ctx, s.DB, id)
	return b, classify("store.Branch", err)
}

func (s *SQLite) Category(ctx context.Context, id int64) (*model.Category, error) {
	c, err := GetCategory(ctx, s.DB, id)
	return c, classify("store.Category", err)
}

func (s *SQLite) Item(ctx context.Context, id int64) (*model.Item, error) {
	item, err := GetItem(ctx, s.DB, id)
	return item, classify("store.Item", err)
}

func (s *SQLite) ItemsMissingCode(ctx context.Context) ([]model.Item, error) {
	items, err := itemsMissingCode(ctx, s.DB)
	return items, classify("store.ItemsMissingCode", err)
}

func (s *SQLite) MaxSequence(ctx context.Context, branchID, categoryID int64) (int64, error) {
	high, err := maxSequence(ctx, s.DB, branchID, categoryID)
	return high, classify("store.MaxSequence", err)
}

func maxSequence(ctx context.Context, q queryer, branchID, categoryID int64) (int64, error) {
	var high int64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(
		     COALESCE((SELECT last_seq FROM sequence_counters WHERE branch_id = ? AND category_id = ?), 0),
		     COALESCE((SELECT MAX(type_seq) FROM items WHERE branch_id = ? AND category_id = ?), 0))`,
		branchID, categoryID, branchID, categoryID,
	).Scan(&high)
	if err != nil {
		return 0, fmt.Errorf("reading sequence high-water mark: %w", err)
	}
	return high, nil
}

// ReserveSequenceRange implements sequence.Store.
func (s *SQLite) ReserveSequenceRange(ctx context.Context, branchID, categoryID int64, count int,
	apply func(w sequence.Writer, start int64) error) (int64, error) {
	const op = "store.ReserveSequenceRange"
	if count < 1 {
		return 0, model.Errorf(op, model.ErrValidation, "count must be positive")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(op, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	high, err := maxSequence(ctx, tx, branchID, categoryID)
	if err != nil {
		return 0, classify(op, err)
	}
	start, last := high+1, high+int64(count)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sequence_counters (branch_id, category_id, last_seq) VALUES (?, ?, ?)
		 ON CONFLICT (branch_id, category_id)
		 DO UPDATE SET last_seq = excluded.last_seq, updated_at = CURRENT_TIMESTAMP`,
		branchID, categoryID, last,
	)
	if err != nil {
		return 0, classify(op, fmt.Errorf("advancing sequence counter: %w", err))
	}

	if apply != nil {
		if err := apply(&sqliteWriter{tx: tx}, start); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(op, fmt.Errorf("committing reservation: %w", err))
	}
	return start, nil
}

// sqliteWriter runs sequence.Writer operations inside a reservation.
type sqliteWriter struct {
	tx *sql.Tx
}

func (w *sqliteWriter) InsertItem(ctx context.Context, item *model.Item) error {
	return classify("store.InsertItem", insertItem(ctx, w.tx, item))
}

func (w *sqliteWriter) AssignCode(ctx context.Context, itemID, branchID, categoryID, seq int64, code string) error {
	const op = "store.AssignCode"
	result, err := w.tx.ExecContext(ctx,
		`UPDATE items SET branch_id = ?, category_id = ?, type_seq = ?, item_code = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND item_code IS NULL`,
		branchID, categoryID, seq, code, itemID,
	)
	if err != nil {
		return classify(op, fmt.Errorf("assigning item code: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = w.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = ?)`, itemID).Scan(&exists)
	if err != nil {
		return classify(op, err)
	}
	if !exists {
		return model.Errorf(op, model.ErrNotFound, "item %d", itemID)
	}
	return sequence.ErrAlreadyCoded
}

// FindCredential implements auth.CredentialStore.
func (s *SQLite) FindCredential(ctx context.Context, identifier string) (*model.User, error) {
	u, err := GetUserByUsername(ctx, s.DB, identifier)
	return u, classify("store.FindCredential", err)
}

func (s *SQLite) RecordLoginSuccess(ctx context.Context, userID int64) error {
	return classify("store.RecordLoginSuccess", RecordLoginSuccess(ctx, s.DB, userID))
}

func (s *SQLite) RecordLoginFailure(ctx context.Context, userID int64) error {
	return classify("store.RecordLoginFailure", RecordLoginFailure(ctx, s.DB, userID))
}

func (s *SQLite) UpgradeHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error) {
	swapped, err := UpgradePasswordHash(ctx, s.DB, userID, oldHash, newHash)
	return swapped, classify("store.UpgradeHash", err)
}
