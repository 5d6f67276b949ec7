package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/nakit/internal/auth"
	"github.com/erazemk/nakit/internal/model"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	Migrator  *auth.Migrator
	Catalog   Catalog
	JWTSecret string
	Expiry    time.Duration
	Logger    *slog.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login. Legacy password hashes are upgraded
// transparently by the migrator on success.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	id, err := h.Migrator.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrAuthenticationFailed) {
			h.Logger.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		}
		writeError(w, r, h.Logger, err)
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, *id, h.Expiry)
	if err != nil {
		h.Logger.Error("generating token", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	h.Logger.Info("user logged in", "user", id.Username, "role", id.Role)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Migrator.Authenticate(r.Context(), claims.Username, req.CurrentPassword); err != nil {
		if errors.Is(err, model.ErrAuthenticationFailed) {
			jsonError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		writeError(w, r, h.Logger, err)
		return
	}

	hash, err := h.Migrator.Hasher().Hash(req.NewPassword)
	if err != nil {
		h.Logger.Error("hashing password", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := h.Catalog.SetPassword(r.Context(), claims.UserID, hash); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil || claims.ExpiresAt == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.Catalog.RevokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}
