package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/nakit/internal/imaging"
	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
	"github.com/erazemk/nakit/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Catalog   Catalog
	Allocator *sequence.Allocator
	Logger    *slog.Logger
}

type createItemsRequest struct {
	BranchID   int64           `json:"branch_id"`
	CategoryID int64           `json:"category_id"`
	Count      int             `json:"count"`
	Title      string          `json:"title"`
	Metal      string          `json:"metal"`
	Karat      int             `json:"karat"`
	Weight     decimal.Decimal `json:"weight"`
	Condition  string          `json:"condition"`
	Status     string          `json:"status"`
}

type updateItemRequest struct {
	Title     string          `json:"title"`
	Metal     string          `json:"metal"`
	Karat     int             `json:"karat"`
	Weight    decimal.Decimal `json:"weight"`
	Condition string          `json:"condition"`
	Status    string          `json:"status"`
}

type previewResponse struct {
	Next  int64                 `json:"next"`
	Codes []sequence.Allocation `json:"codes"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := itemFilter(w, r)
	if !ok {
		return
	}
	items, err := h.Catalog.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. All count items are created, each with its
// own code, or none are.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BranchID <= 0 || req.CategoryID <= 0 {
		jsonError(w, http.StatusBadRequest, "branch_id and category_id required")
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	items, err := h.Allocator.CreateItems(r.Context(), model.Item{
		BranchID:   req.BranchID,
		CategoryID: req.CategoryID,
		Title:      req.Title,
		Metal:      strings.TrimSpace(req.Metal),
		Karat:      req.Karat,
		Weight:     req.Weight,
		Condition:  req.Condition,
		Status:     req.Status,
	}, req.Count)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("items created", "user", GetClaims(r.Context()).Username,
		"count", len(items), "first", items[0].ItemCode, "last", items[len(items)-1].ItemCode)
	jsonResponse(w, http.StatusCreated, items)
}

// Preview handles GET /api/items/preview?branch_id=&category_id=&count=.
// Nothing is reserved; the codes shown may be taken by the time the caller
// creates items.
func (h *ItemsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branchID, err1 := strconv.ParseInt(q.Get("branch_id"), 10, 64)
	categoryID, err2 := strconv.ParseInt(q.Get("category_id"), 10, 64)
	if err1 != nil || err2 != nil {
		jsonError(w, http.StatusBadRequest, "branch_id and category_id required")
		return
	}
	count := 1
	if s := q.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = n
	}

	next, err := h.Allocator.PeekNext(r.Context(), branchID, categoryID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	codes, err := h.Allocator.Preview(r.Context(), branchID, categoryID, count)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, previewResponse{Next: next, Codes: codes})
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. Branch, category and code are fixed
// once issued and cannot be changed here.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}
	if req.Status == "" {
		req.Status = item.Status
	}
	if !model.ValidItemStatus(req.Status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Condition == "" {
		req.Condition = item.Condition
	}
	if !model.ValidCondition(req.Condition) {
		jsonError(w, http.StatusBadRequest, "invalid condition")
		return
	}
	if req.Karat < 0 || req.Weight.IsNegative() {
		jsonError(w, http.StatusBadRequest, "karat and weight must not be negative")
		return
	}

	item.Title = req.Title
	item.Metal = strings.TrimSpace(req.Metal)
	item.Karat = req.Karat
	item.Weight = req.Weight
	item.Condition = req.Condition
	item.Status = req.Status

	if err := h.Catalog.UpdateItem(r.Context(), item); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	updated, err := h.Catalog.Item(r.Context(), item.ID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}. The item's code is never reissued.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.Catalog.DeleteItem(r.Context(), item.ID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	h.Logger.Info("item deleted", "user", GetClaims(r.Context()).Username, "item_code", item.ItemCode)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.ProcessPhoto(file, imaging.DefaultOptions)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		jsonError(w, http.StatusBadRequest, "image must be JPEG or PNG")
		return
	case err != nil:
		h.Logger.Error("processing image", "item_id", item.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to process image")
		return
	}

	if err := h.Catalog.SetItemImage(r.Context(), item.ID, photo.Data, photo.MIME); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := h.Catalog.ItemImage(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// lookup resolves {id} to a live item, writing the error response itself
// when that fails.
func (h *ItemsHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}
	item, err := h.Catalog.Item(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return nil, false
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}

// itemFilter reads branch_id, category_id and status from the query string.
func itemFilter(w http.ResponseWriter, r *http.Request) (store.ItemFilter, bool) {
	q := r.URL.Query()
	var filter store.ItemFilter
	for key, dst := range map[string]*int64{"branch_id": &filter.BranchID, "category_id": &filter.CategoryID} {
		if s := q.Get(key); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid "+key)
				return filter, false
			}
			*dst = id
		}
	}
	filter.Status = q.Get("status")
	if filter.Status != "" && !model.ValidItemStatus(filter.Status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return filter, false
	}
	return filter, true
}
