package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/nakit/internal/model"
)

// Branches and categories share one table shape, so the queries below are
// parameterized by table name. The name never comes from user input.
const (
	tableBranches   = "branches"
	tableCategories = "categories"
)

func createCoded(ctx context.Context, db *sql.DB, table, code, name string) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO `+table+` (code, name) VALUES (?, ?)`, code, name,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CreateBranch creates a new branch.
func CreateBranch(ctx context.Context, db *sql.DB, code, name string) (*model.Branch, error) {
	id, err := createCoded(ctx, db, tableBranches, code, name)
	if err != nil {
		return nil, fmt.Errorf("creating branch: %w", err)
	}
	return GetBranch(ctx, db, id)
}

// GetBranch returns a branch by ID.
func GetBranch(ctx context.Context, q queryer, id int64) (*model.Branch, error) {
	b := &model.Branch{}
	err := q.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM branches WHERE id = ?`, id,
	).Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting branch: %w", err)
	}
	return b, nil
}

// GetBranchByCode returns a branch by its code.
func GetBranchByCode(ctx context.Context, db *sql.DB, code string) (*model.Branch, error) {
	b := &model.Branch{}
	err := db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM branches WHERE code = ?`, code,
	).Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting branch by code: %w", err)
	}
	return b, nil
}

// ListBranches returns all branches ordered by code.
func ListBranches(ctx context.Context, db *sql.DB) ([]model.Branch, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, code, name, created_at FROM branches ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	defer rows.Close()

	var branches []model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning branch: %w", err)
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// RenameBranch updates a branch's display name. The code is immutable.
func RenameBranch(ctx context.Context, db *sql.DB, id int64, name string) error {
	_, err := db.ExecContext(ctx, `UPDATE branches SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("renaming branch: %w", err)
	}
	return nil
}
