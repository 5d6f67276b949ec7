package store

import (
	"context"

	"github.com/erazemk/nakit/internal/model"
)

// The methods below expose the package-level queries through *SQLite so the
// API can run on any backend.

func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash, role string) (*model.User, error) {
	u, err := CreateUser(ctx, s.DB, username, passwordHash, role)
	return u, classify("store.CreateUser", err)
}

func (s *SQLite) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := GetUser(ctx, s.DB, id)
	return u, classify("store.User", err)
}

func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := ListUsers(ctx, s.DB)
	return users, classify("store.ListUsers", err)
}

func (s *SQLite) UpdateUserRole(ctx context.Context, id int64, role string) error {
	return classify("store.UpdateUserRole", UpdateUser(ctx, s.DB, id, role))
}

func (s *SQLite) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return classify("store.SetPassword", UpdateUserPassword(ctx, s.DB, id, passwordHash))
}

func (s *SQLite) DeleteUser(ctx context.Context, id int64) error {
	return classify("store.DeleteUser", DeleteUser(ctx, s.DB, id))
}

func (s *SQLite) CreateBranch(ctx context.Context, code, name string) (*model.Branch, error) {
	b, err := CreateBranch(ctx, s.DB, code, name)
	return b, classify("store.CreateBranch", err)
}

func (s *SQLite) BranchByCode(ctx context.Context, code string) (*model.Branch, error) {
	b, err := GetBranchByCode(ctx, s.DB, code)
	return b, classify("store.BranchByCode", err)
}

func (s *SQLite) ListBranches(ctx context.Context) ([]model.Branch, error) {
	branches, err := ListBranches(ctx, s.DB)
	return branches, classify("store.ListBranches", err)
}

func (s *SQLite) RenameBranch(ctx context.Context, id int64, name string) error {
	return classify("store.RenameBranch", RenameBranch(ctx, s.DB, id, name))
}

func (s *SQLite) CreateCategory(ctx context.Context, code, name string) (*model.Category, error) {
	c, err := CreateCategory(ctx, s.DB, code, name)
	return c, classify("store.CreateCategory", err)
}

func (s *SQLite) CategoryByCode(ctx context.Context, code string) (*model.Category, error) {
	c, err := GetCategoryByCode(ctx, s.DB, code)
	return c, classify("store.CategoryByCode", err)
}

func (s *SQLite) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := ListCategories(ctx, s.DB)
	return categories, classify("store.ListCategories", err)
}

func (s *SQLite) RenameCategory(ctx context.Context, id int64, name string) error {
	return classify("store.RenameCategory", RenameCategory(ctx, s.DB, id, name))
}

func (s *SQLite) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	items, err := ListItems(ctx, s.DB, filter)
	return items, classify("store.ListItems", err)
}

func (s *SQLite) UpdateItem(ctx context.Context, item *model.Item) error {
	return classify("store.UpdateItem", UpdateItem(ctx, s.DB, item))
}

func (s *SQLite) DeleteItem(ctx context.Context, id int64) error {
	return classify("store.DeleteItem", DeleteItem(ctx, s.DB, id))
}

func (s *SQLite) SetItemImage(ctx context.Context, id int64, image []byte, mime string) error {
	return classify("store.SetItemImage", SetItemImage(ctx, s.DB, id, image, mime))
}

func (s *SQLite) ItemImage(ctx context.Context, id int64) ([]byte, string, error) {
	image, mime, err := GetItemImage(ctx, s.DB, id)
	return image, mime, classify("store.ItemImage", err)
}

func (s *SQLite) JWTSecret(ctx context.Context) (string, error) {
	secret, err := GetJWTSecret(ctx, s.DB)
	return secret, classify("store.JWTSecret", err)
}
