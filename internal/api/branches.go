package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/nakit/internal/model"
)

// codedKind adapts branches and categories, which share the same shape: an
// immutable code plus a renameable display name.
type codedKind struct {
	noun   string
	create func(ctx context.Context, code, name string) (any, error)
	get    func(ctx context.Context, id int64) (any, error)
	list   func(ctx context.Context) (any, error)
	rename func(ctx context.Context, id int64, name string) error
}

func branchKind(c Catalog) codedKind {
	return codedKind{
		noun: "branch",
		create: func(ctx context.Context, code, name string) (any, error) {
			return c.CreateBranch(ctx, code, name)
		},
		get: func(ctx context.Context, id int64) (any, error) {
			b, err := c.Branch(ctx, id)
			if b == nil {
				return nil, err
			}
			return b, err
		},
		list: func(ctx context.Context) (any, error) {
			branches, err := c.ListBranches(ctx)
			if branches == nil {
				branches = []model.Branch{}
			}
			return branches, err
		},
		rename: c.RenameBranch,
	}
}

func categoryKind(c Catalog) codedKind {
	return codedKind{
		noun: "category",
		create: func(ctx context.Context, code, name string) (any, error) {
			return c.CreateCategory(ctx, code, name)
		},
		get: func(ctx context.Context, id int64) (any, error) {
			cat, err := c.Category(ctx, id)
			if cat == nil {
				return nil, err
			}
			return cat, err
		},
		list: func(ctx context.Context) (any, error) {
			categories, err := c.ListCategories(ctx)
			if categories == nil {
				categories = []model.Category{}
			}
			return categories, err
		},
		rename: c.RenameCategory,
	}
}

// CodedHandler serves /api/branches and /api/categories.
type CodedHandler struct {
	kind   codedKind
	Logger *slog.Logger
}

type codedRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// List handles GET /api/{branches,categories}.
func (h *CodedHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.kind.list(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Create handles POST /api/{branches,categories}.
func (h *CodedHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req codedRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := model.ValidateCode(req.Code); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	created, err := h.kind.create(r.Context(), req.Code, req.Name)
	if err != nil {
		if model.IsConflict(err) {
			jsonError(w, http.StatusConflict, h.kind.noun+" code already exists")
			return
		}
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info(h.kind.noun+" created", "user", GetClaims(r.Context()).Username, "code", req.Code)
	jsonResponse(w, http.StatusCreated, created)
}

// Get handles GET /api/{branches,categories}/{id}.
func (h *CodedHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid "+h.kind.noun+" id")
		return
	}

	found, err := h.kind.get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if found == nil {
		jsonError(w, http.StatusNotFound, h.kind.noun+" not found")
		return
	}
	jsonResponse(w, http.StatusOK, found)
}

// Rename handles PUT /api/{branches,categories}/{id}. Only the name may
// change; a code is part of every item code already issued.
func (h *CodedHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid "+h.kind.noun+" id")
		return
	}

	var req codedRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	found, err := h.kind.get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if found == nil {
		jsonError(w, http.StatusNotFound, h.kind.noun+" not found")
		return
	}
	if req.Code != "" && req.Code != codeOf(found) {
		jsonError(w, http.StatusBadRequest, h.kind.noun+" code cannot be changed")
		return
	}

	if err := h.kind.rename(r.Context(), id, req.Name); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	updated, err := h.kind.get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

func codeOf(v any) string {
	switch v := v.(type) {
	case *model.Branch:
		return v.Code
	case *model.Category:
		return v.Code
	}
	return ""
}
