package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes order history endpoints.
type Handler struct {
	Store Store
}

// List returns recent orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	orders, err := h.Store.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: page, PerPage: perPage, Count: len(orders)},
	})
}

// Search finds an order by its POS number.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	number := NormalizeNumber(chi.URLParam(r, "number"))
	if number == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order number is required", nil)
		return
	}
	o, err := h.Store.FindByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.Data(w, http.StatusOK, o)
}
