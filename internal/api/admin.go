package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/nakit/internal/sequence"
)

// AdminHandler handles maintenance endpoints.
type AdminHandler struct {
	Allocator *sequence.Allocator
	Logger    *slog.Logger
}

// Backfill handles POST /api/admin/backfill. A partial report is returned
// alongside the error when the run stops early; running it again resumes.
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	report, err := h.Allocator.BackfillAll(r.Context())
	if err != nil {
		if report != nil {
			h.Logger.Warn("backfill interrupted", "assigned", len(report.Assigned), "error", err)
		}
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("backfill run", "user", GetClaims(r.Context()).Username,
		"assigned", len(report.Assigned), "skipped", report.Skipped, "failed", len(report.Failed))
	jsonResponse(w, http.StatusOK, report)
}
