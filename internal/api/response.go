package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/nakit/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps an operation error onto an HTTP status. Conflicts carry a
// Retry-After hint since they are safe to retry.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case model.IsNotFound(err):
		jsonError(w, http.StatusNotFound, message(err))
	case model.IsValidation(err):
		jsonError(w, http.StatusBadRequest, message(err))
	case model.IsConflict(err):
		w.Header().Set("Retry-After", "1")
		jsonError(w, http.StatusConflict, "concurrent update, please retry")
	case errors.Is(err, model.ErrAuthenticationFailed):
		jsonError(w, http.StatusUnauthorized, model.ErrAuthenticationFailed.Error())
	case errors.Is(err, model.ErrStoreUnavailable):
		logger.Error("store unavailable", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// message returns the caller-facing part of an operation error.
func message(err error) string {
	var me *model.Error
	if errors.As(err, &me) {
		if me.Msg != "" {
			return me.Msg
		}
		return me.Kind.Error()
	}
	return err.Error()
}
