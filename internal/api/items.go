package api

import (
	"net/http"

	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/model"
)

// ItemsHandler handles item listing endpoints.
type ItemsHandler struct {
	Registry *exchange.Registry
}

// List handles GET /api/items?keyword=&category=&type=&status=.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ItemFilter{
		Keyword:  q.Get("keyword"),
		Category: q.Get("category"),
		Type:     model.ItemType(q.Get("type")),
		Status:   model.ItemStatus(q.Get("status")),
	}

	items := []model.Item{}
	for item, err := range h.Registry.Search(r.Context(), filter) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		items = append(items, item)
	}
	jsonResponse(w, http.StatusOK, items)
}

// ListByUser handles GET /api/items/user/{userId}.
func (h *ItemsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	items, err := h.Registry.ListUserItems(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. The caller becomes the owner.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Registry.CreateItem(r.Context(), GetClaims(r.Context()).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Registry.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in model.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Registry.UpdateItem(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. Items are marked removed, not
// deleted, so offer history stays intact.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, err := h.Registry.RemoveItem(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}
