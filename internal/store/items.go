package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/nakit/internal/model"
)

const itemColumns = `id, branch_id, category_id, type_seq, item_code, title, metal, karat, weight,
	condition, status, image_mime, created_at, updated_at, deleted_at`

func scanItem(s scanner) (*model.Item, error) {
	item := &model.Item{}
	var branchID, categoryID, typeSeq sql.NullInt64
	var itemCode, metal, imageMime sql.NullString
	err := s.Scan(&item.ID, &branchID, &categoryID, &typeSeq, &itemCode, &item.Title, &metal,
		&item.Karat, &item.Weight, &item.Condition, &item.Status, &imageMime,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	item.BranchID = branchID.Int64
	item.CategoryID = categoryID.Int64
	item.TypeSeq = typeSeq.Int64
	item.ItemCode = itemCode.String
	item.Metal = metal.String
	item.ImageMime = imageMime.String
	return item, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// insertItem writes a new item row and fills in its ID and timestamps.
// TypeSeq and ItemCode are written as given; both empty means uncoded.
func insertItem(ctx context.Context, q queryer, item *model.Item) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO items (branch_id, category_id, type_seq, item_code, title, metal, karat, weight, condition, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(item.BranchID), nullID(item.CategoryID), nullID(item.TypeSeq), nullString(item.ItemCode),
		item.Title, nullString(item.Metal), item.Karat, item.Weight.String(), item.Condition, item.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting item id: %w", err)
	}
	item.ID = id
	err = q.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM items WHERE id = ?`, id,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reading item timestamps: %w", err)
	}
	return nil
}

// CreateUncodedItem stores an item without a sequence number, the way
// records imported from older systems arrive. Allocator.Backfill codes it
// later.
func CreateUncodedItem(ctx context.Context, db *sql.DB, item model.Item) (*model.Item, error) {
	item.TypeSeq, item.ItemCode = 0, ""
	if item.Condition == "" {
		item.Condition = model.ConditionNew
	}
	if item.Status == "" {
		item.Status = model.ItemStatusInStock
	}
	if err := insertItem(ctx, db, &item); err != nil {
		return nil, err
	}
	return GetItem(ctx, db, item.ID)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q queryer, id int64) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	BranchID       int64
	CategoryID     int64
	Status         string
	IncludeDeleted bool
}

// ListItems returns items matching filter ordered by code, uncoded items last.
func ListItems(ctx context.Context, db *sql.DB, filter ItemFilter) ([]model.Item, error) {
	var where []string
	var args []any
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.BranchID != 0 {
		where = append(where, "branch_id = ?")
		args = append(args, filter.BranchID)
	}
	if filter.CategoryID != 0 {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY branch_id IS NULL, branch_id, category_id, type_seq IS NULL, type_seq, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
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

// itemsMissingCode lists items without a code, oldest first.
func itemsMissingCode(ctx context.Context, q queryer) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE item_code IS NULL ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items missing code: %w", err)
	}
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

// UpdateItem updates an item's descriptive fields. Branch, category, sequence
// number and code are never touched here.
func UpdateItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET title = ?, metal = ?, karat = ?, weight = ?, condition = ?, status = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		item.Title, nullString(item.Metal), item.Karat, item.Weight.String(), item.Condition, item.Status, item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return nil
}

// DeleteItem soft-deletes an item. Its code stays issued.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// SetItemImage sets an item's image data.
func SetItemImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}
