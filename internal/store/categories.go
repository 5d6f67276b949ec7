package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/nakit/internal/model"
)

// CreateCategory creates a new category.
func CreateCategory(ctx context.Context, db *sql.DB, code, name string) (*model.Category, error) {
	id, err := createCoded(ctx, db, tableCategories, code, name)
	if err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	return GetCategory(ctx, db, id)
}

// GetCategory returns a category by ID.
func GetCategory(ctx context.Context, q queryer, id int64) (*model.Category, error) {
	c := &model.Category{}
	err := q.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return c, nil
}

// GetCategoryByCode returns a category by its code.
func GetCategoryByCode(ctx context.Context, db *sql.DB, code string) (*model.Category, error) {
	c := &model.Category{}
	err := db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM categories WHERE code = ?`, code,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting category by code: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by code.
func ListCategories(ctx context.Context, db *sql.DB) ([]model.Category, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, code, name, created_at FROM categories ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// RenameCategory updates a category's display name. The code is immutable.
func RenameCategory(ctx context.Context, db *sql.DB, id int64, name string) error {
	_, err := db.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("renaming category: %w", err)
	}
	return nil
}
