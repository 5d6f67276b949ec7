package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
)

const itemColumns = `id, branch_id, category_id, type_seq, item_code, title, metal, karat, weight,
	condition, status, image_mime, created_at, updated_at, deleted_at`

func scanItem(row pgx.Row) (*model.Item, error) {
	item := &model.Item{}
	var branchID, categoryID, typeSeq *int64
	var itemCode, imageMime *string
	err := row.Scan(&item.ID, &branchID, &categoryID, &typeSeq, &itemCode, &item.Title, &item.Metal,
		&item.Karat, &item.Weight, &item.Condition, &item.Status, &imageMime,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	if branchID != nil {
		item.BranchID = *branchID
	}
	if categoryID != nil {
		item.CategoryID = *categoryID
	}
	if typeSeq != nil {
		item.TypeSeq = *typeSeq
	}
	if itemCode != nil {
		item.ItemCode = *itemCode
	}
	if imageMime != nil {
		item.ImageMime = *imageMime
	}
	return item, nil
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) Branch(ctx context.Context, id int64) (*model.Branch, error) {
	b := &model.Branch{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM branches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("postgres.Branch", err)
	}
	return b, nil
}

func (s *Store) Category(ctx context.Context, id int64) (*model.Category, error) {
	c := &model.Category{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("postgres.Category", err)
	}
	return c, nil
}

func (s *Store) Item(ctx context.Context, id int64) (*model.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("postgres.Item", err)
	}
	return item, nil
}

func (s *Store) ItemsMissingCode(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE item_code IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, classify("postgres.ItemsMissingCode", err)
	}
	items, err := collectItems(rows)
	return items, classify("postgres.ItemsMissingCode", err)
}

func collectItems(rows pgx.Rows) ([]model.Item, error) {
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) MaxSequence(ctx context.Context, branchID, categoryID int64) (int64, error) {
	var high int64
	err := s.pool.QueryRow(ctx,
		`SELECT GREATEST(
		     COALESCE((SELECT last_seq FROM sequence_counters WHERE branch_id = $1 AND category_id = $2), 0),
		     COALESCE((SELECT MAX(type_seq) FROM items WHERE branch_id = $1 AND category_id = $2), 0))`,
		branchID, categoryID,
	).Scan(&high)
	return high, classify("postgres.MaxSequence", err)
}

// ReserveSequenceRange implements sequence.Store. The counter row is created
// if missing and then locked, so concurrent reservations for one pair queue
// on the row lock while other pairs proceed.
func (s *Store) ReserveSequenceRange(ctx context.Context, branchID, categoryID int64, count int,
	apply func(w sequence.Writer, start int64) error) (int64, error) {
	const op = "postgres.ReserveSequenceRange"
	if count < 1 {
		return 0, model.Errorf(op, model.ErrValidation, "count must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classify(op, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sequence_counters (branch_id, category_id, last_seq) VALUES ($1, $2, 0)
		 ON CONFLICT (branch_id, category_id) DO NOTHING`,
		branchID, categoryID,
	)
	if err != nil {
		return 0, classify(op, fmt.Errorf("creating sequence counter: %w", err))
	}

	var counter int64
	err = tx.QueryRow(ctx,
		`SELECT last_seq FROM sequence_counters WHERE branch_id = $1 AND category_id = $2 FOR UPDATE`,
		branchID, categoryID,
	).Scan(&counter)
	if err != nil {
		return 0, classify(op, fmt.Errorf("locking sequence counter: %w", err))
	}

	var highestItem int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(type_seq), 0) FROM items WHERE branch_id = $1 AND category_id = $2`,
		branchID, categoryID,
	).Scan(&highestItem)
	if err != nil {
		return 0, classify(op, fmt.Errorf("reading highest item sequence: %w", err))
	}

	start := max(counter, highestItem) + 1
	_, err = tx.Exec(ctx,
		`UPDATE sequence_counters SET last_seq = $3, updated_at = now()
		 WHERE branch_id = $1 AND category_id = $2`,
		branchID, categoryID, start+int64(count)-1,
	)
	if err != nil {
		return 0, classify(op, fmt.Errorf("advancing sequence counter: %w", err))
	}

	if apply != nil {
		if err := apply(&writer{tx: tx}, start); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(op, fmt.Errorf("committing reservation: %w", err))
	}
	return start, nil
}

type writer struct {
	tx pgx.Tx
}

func (w *writer) InsertItem(ctx context.Context, item *model.Item) error {
	err := w.tx.QueryRow(ctx,
		`INSERT INTO items (branch_id, category_id, type_seq, item_code, title, metal, karat, weight, condition, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		nullID(item.BranchID), nullID(item.CategoryID), nullID(item.TypeSeq), nullString(item.ItemCode),
		item.Title, item.Metal, item.Karat, item.Weight, item.Condition, item.Status,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return classify("postgres.InsertItem", fmt.Errorf("inserting item: %w", err))
	}
	return nil
}

func (w *writer) AssignCode(ctx context.Context, itemID, branchID, categoryID, seq int64, code string) error {
	const op = "postgres.AssignCode"
	tag, err := w.tx.Exec(ctx,
		`UPDATE items SET branch_id = $1, category_id = $2, type_seq = $3, item_code = $4, updated_at = now()
		 WHERE id = $5 AND item_code IS NULL`,
		branchID, categoryID, seq, code, itemID,
	)
	if err != nil {
		return classify(op, fmt.Errorf("assigning item code: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := w.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return classify(op, err)
	}
	if !exists {
		return model.Errorf(op, model.ErrNotFound, "item %d", itemID)
	}
	return sequence.ErrAlreadyCoded
}
