package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/nakit/internal/auth"
	"github.com/erazemk/nakit/internal/metrics"
	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
	"github.com/erazemk/nakit/internal/store"
)

// Catalog is the persistence surface the API needs beyond the allocator and
// the migrator. Both the SQLite and the PostgreSQL store implement it.
type Catalog interface {
	CreateUser(ctx context.Context, username, passwordHash, role string) (*model.User, error)
	User(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id int64, role string) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	DeleteUser(ctx context.Context, id int64) error

	CreateBranch(ctx context.Context, code, name string) (*model.Branch, error)
	Branch(ctx context.Context, id int64) (*model.Branch, error)
	ListBranches(ctx context.Context) ([]model.Branch, error)
	RenameBranch(ctx context.Context, id int64, name string) error

	CreateCategory(ctx context.Context, code, name string) (*model.Category, error)
	Category(ctx context.Context, id int64) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) error

	Item(ctx context.Context, id int64) (*model.Item, error)
	ListItems(ctx context.Context, filter store.ItemFilter) ([]model.Item, error)
	UpdateItem(ctx context.Context, item *model.Item) error
	DeleteItem(ctx context.Context, id int64) error
	SetItemImage(ctx context.Context, id int64, image []byte, mime string) error
	ItemImage(ctx context.Context, id int64) ([]byte, string, error)

	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	TokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Config wires the router to its dependencies.
type Config struct {
	Catalog   Catalog
	Allocator *sequence.Allocator
	Migrator  *auth.Migrator
	JWTSecret string
	// TokenExpiry defaults to auth.TokenExpiry.
	TokenExpiry time.Duration
	Logger      *slog.Logger
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = auth.TokenExpiry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{Migrator: cfg.Migrator, Catalog: cfg.Catalog, JWTSecret: cfg.JWTSecret, Expiry: cfg.TokenExpiry, Logger: cfg.Logger}
	usersHandler := &UsersHandler{Catalog: cfg.Catalog, Hasher: cfg.Migrator.Hasher(), Logger: cfg.Logger}
	branchesHandler := &CodedHandler{kind: branchKind(cfg.Catalog), Logger: cfg.Logger}
	categoriesHandler := &CodedHandler{kind: categoryKind(cfg.Catalog), Logger: cfg.Logger}
	itemsHandler := &ItemsHandler{Catalog: cfg.Catalog, Allocator: cfg.Allocator, Logger: cfg.Logger}
	adminHandler := &AdminHandler{Allocator: cfg.Allocator, Logger: cfg.Logger}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.Catalog)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Branches and categories: read (all roles), write (manager+).
	for prefix, h := range map[string]*CodedHandler{"/api/branches": branchesHandler, "/api/categories": categoriesHandler} {
		mux.Handle("GET "+prefix, authMW(http.HandlerFunc(h.List)))
		mux.Handle("POST "+prefix, authMW(requireManager(http.HandlerFunc(h.Create))))
		mux.Handle("GET "+prefix+"/{id}", authMW(http.HandlerFunc(h.Get)))
		mux.Handle("PUT "+prefix+"/{id}", authMW(requireManager(http.HandlerFunc(h.Rename))))
	}

	// Items: read (all roles), write (manager+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireManager(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/preview", authMW(http.HandlerFunc(itemsHandler.Preview)))
	mux.Handle("GET /api/items/export", authMW(http.HandlerFunc(itemsHandler.Export)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireManager(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))

	mux.Handle("POST /api/admin/backfill", authMW(requireAdmin(http.HandlerFunc(adminHandler.Backfill))))

	return RequestID(LoggingMiddleware(cfg.Logger)(mux))
}
