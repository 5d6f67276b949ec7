package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/store"
)

const userColumns = `id, username, password_hash, role, failed_logins, locked_until, created_at, deleted_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FailedLogins, &u.LockedUntil, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3) RETURNING `+userColumns,
		username, passwordHash, role))
	return u, classify("postgres.CreateUser", err)
}

func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, classify("postgres.User", err)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, classify("postgres.ListUsers", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("postgres.ListUsers", err)
		}
		users = append(users, *u)
	}
	return users, classify("postgres.ListUsers", rows.Err())
}

func (s *Store) UpdateUserRole(ctx context.Context, id int64, role string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2 AND deleted_at IS NULL`, role, id)
	return classify("postgres.UpdateUserRole", err)
}

func (s *Store) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, failed_logins = 0, locked_until = NULL
		 WHERE id = $2 AND deleted_at IS NULL`, passwordHash, id)
	return classify("postgres.SetPassword", err)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return classify("postgres.DeleteUser", err)
}

// FindCredential implements auth.CredentialStore.
func (s *Store) FindCredential(ctx context.Context, identifier string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1
		 ORDER BY deleted_at IS NULL DESC, id DESC LIMIT 1`, identifier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, classify("postgres.FindCredential", err)
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET failed_logins = 0, locked_until = NULL WHERE id = $1`, userID)
	return classify("postgres.RecordLoginSuccess", err)
}

func (s *Store) RecordLoginFailure(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET failed_logins = failed_logins + 1 WHERE id = $1`, userID)
	return classify("postgres.RecordLoginFailure", err)
}

func (s *Store) UpgradeHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, failed_logins = 0, locked_until = NULL
		 WHERE id = $2 AND password_hash = $3`, newHash, userID, oldHash)
	if err != nil {
		return false, classify("postgres.UpgradeHash", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreateBranch(ctx context.Context, code, name string) (*model.Branch, error) {
	b := &model.Branch{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO branches (code, name) VALUES ($1, $2) RETURNING id, code, name, created_at`, code, name,
	).Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt)
	if err != nil {
		return nil, classify("postgres.CreateBranch", err)
	}
	return b, nil
}

func (s *Store) BranchByCode(ctx context.Context, code string) (*model.Branch, error) {
	b := &model.Branch{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM branches WHERE code = $1`, code,
	).Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("postgres.BranchByCode", err)
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name, created_at FROM branches ORDER BY code`)
	if err != nil {
		return nil, classify("postgres.ListBranches", err)
	}
	defer rows.Close()

	var branches []model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.CreatedAt); err != nil {
			return nil, classify("postgres.ListBranches", err)
		}
		branches = append(branches, b)
	}
	return branches, classify("postgres.ListBranches", rows.Err())
}

func (s *Store) RenameBranch(ctx context.Context, id int64, name string) error {
	_, err := s.pool.Exec(ctx, `UPDATE branches SET name = $1 WHERE id = $2`, name, id)
	return classify("postgres.RenameBranch", err)
}

func (s *Store) CreateCategory(ctx context.Context, code, name string) (*model.Category, error) {
	c := &model.Category{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (code, name) VALUES ($1, $2) RETURNING id, code, name, created_at`, code, name,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, classify("postgres.CreateCategory", err)
	}
	return c, nil
}

func (s *Store) CategoryByCode(ctx context.Context, code string) (*model.Category, error) {
	c := &model.Category{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM categories WHERE code = $1`, code,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("postgres.CategoryByCode", err)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name, created_at FROM categories ORDER BY code`)
	if err != nil {
		return nil, classify("postgres.ListCategories", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt); err != nil {
			return nil, classify("postgres.ListCategories", err)
		}
		categories = append(categories, c)
	}
	return categories, classify("postgres.ListCategories", rows.Err())
}

func (s *Store) RenameCategory(ctx context.Context, id int64, name string) error {
	_, err := s.pool.Exec(ctx, `UPDATE categories SET name = $1 WHERE id = $2`, name, id)
	return classify("postgres.RenameCategory", err)
}

// CreateUncodedItem stores an imported item without a sequence number.
func (s *Store) CreateUncodedItem(ctx context.Context, item model.Item) (*model.Item, error) {
	if item.Condition == "" {
		item.Condition = model.ConditionNew
	}
	if item.Status == "" {
		item.Status = model.ItemStatusInStock
	}
	created, err := scanItem(s.pool.QueryRow(ctx,
		`INSERT INTO items (branch_id, category_id, title, metal, karat, weight, condition, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+itemColumns,
		nullID(item.BranchID), nullID(item.CategoryID), item.Title, item.Metal, item.Karat, item.Weight,
		item.Condition, item.Status))
	if err != nil {
		return nil, classify("postgres.CreateUncodedItem", err)
	}
	return created, nil
}

func (s *Store) ListItems(ctx context.Context, filter store.ItemFilter) ([]model.Item, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.BranchID != 0 {
		add("branch_id = $%d", filter.BranchID)
	}
	if filter.CategoryID != 0 {
		add("category_id = $%d", filter.CategoryID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY branch_id NULLS LAST, category_id, type_seq NULLS LAST, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("postgres.ListItems", err)
	}
	items, err := collectItems(rows)
	return items, classify("postgres.ListItems", err)
}

func (s *Store) UpdateItem(ctx context.Context, item *model.Item) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE items SET title = $1, metal = $2, karat = $3, weight = $4, condition = $5, status = $6,
		        updated_at = now()
		 WHERE id = $7 AND deleted_at IS NULL`,
		item.Title, item.Metal, item.Karat, item.Weight, item.Condition, item.Status, item.ID)
	return classify("postgres.UpdateItem", err)
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE items SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return classify("postgres.DeleteItem", err)
}

func (s *Store) SetItemImage(ctx context.Context, id int64, image []byte, mime string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE items SET image = $1, image_mime = $2, updated_at = now() WHERE id = $3 AND deleted_at IS NULL`,
		image, mime, id)
	return classify("postgres.SetItemImage", err)
}

func (s *Store) ItemImage(ctx context.Context, id int64) ([]byte, string, error) {
	var image []byte
	var mime *string
	err := s.pool.QueryRow(ctx, `SELECT image, image_mime FROM items WHERE id = $1`, id).Scan(&image, &mime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", classify("postgres.ItemImage", err)
	}
	if mime == nil {
		return image, "", nil
	}
	return image, *mime, nil
}

// JWTSecret returns the token signing secret, creating it on first use.
func (s *Store) JWTSecret(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ('jwt_secret', $1) ON CONFLICT (key) DO NOTHING`,
		hex.EncodeToString(buf))
	if err != nil {
		return "", classify("postgres.JWTSecret", err)
	}
	var secret string
	err = s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = 'jwt_secret'`).Scan(&secret)
	return secret, classify("postgres.JWTSecret", err)
}

func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`,
		jti, expiresAt)
	if err != nil {
		return classify("postgres.RevokeToken", err)
	}
	_, _ = s.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < now()`)
	return nil
}

func (s *Store) TokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	return revoked, classify("postgres.TokenRevoked", err)
}
