package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/nakit/internal/auth"
	"github.com/erazemk/nakit/internal/model"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	Catalog Catalog
	Hasher  auth.Hasher
	Logger  *slog.Logger
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.Catalog.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users. New users always get a modern hash.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.Logger.Error("hashing password", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.Catalog.CreateUser(r.Context(), req.Username, hash, req.Role)
	if err != nil {
		if model.IsConflict(err) {
			jsonError(w, http.StatusConflict, "username already exists")
			return
		}
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("user created", "user", GetClaims(r.Context()).Username, "new_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	target, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := h.Catalog.UpdateUserRole(r.Context(), target.ID, req.Role); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	target.Role = req.Role

	h.Logger.Info("user role updated", "user", GetClaims(r.Context()).Username, "target_user", target.Username, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, target)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	target, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.Logger.Error("hashing password", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := h.Catalog.SetPassword(r.Context(), target.ID, hash); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("user password reset", "user", GetClaims(r.Context()).Username, "target_user", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	target, ok := h.lookup(w, r)
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == target.ID {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := h.Catalog.DeleteUser(r.Context(), target.ID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("user deleted", "user", claims.Username, "deleted_user", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// lookup resolves {id} to an active user, writing the error response itself
// when that fails.
func (h *UsersHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}
	user, err := h.Catalog.User(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return nil, false
	}
	if user == nil || !user.Active() {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}
