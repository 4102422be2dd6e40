package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

// Handler exposes cart session endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type addItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Create starts a new session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, sess)
}

// Get returns the priced session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, chi.URLParam(r, "id"), nil)
}

// AddItem adds a product to the session.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	id := chi.URLParam(r, "id")
	_, err := h.Svc.AddProduct(r.Context(), id, payload.ProductID, payload.Quantity)
	h.respond(w, r, id, err)
}

// UpdateItem sets the quantity of a line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productParam(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	id := chi.URLParam(r, "id")
	_, err := h.Svc.UpdateQuantity(r.Context(), id, productID, payload.Quantity)
	h.respond(w, r, id, err)
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	_, err := h.Svc.Remove(r.Context(), id, productID)
	h.respond(w, r, id, err)
}

// ApplyCoupon attaches a coupon, replacing any prior one.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var payload couponRequest
	if !h.decode(w, r, &payload) {
		return
	}
	id := chi.URLParam(r, "id")
	_, err := h.Svc.ApplyCoupon(r.Context(), id, payload.Code)
	h.respond(w, r, id, err)
}

// RemoveCoupon detaches the coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := h.Svc.RemoveCoupon(r.Context(), id)
	h.respond(w, r, id, err)
}

// Clear empties the session.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := h.Svc.Clear(r.Context(), id)
	h.respond(w, r, id, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.Svc.Summary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summary)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := h.validator().Struct(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func productParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	if appErr := coupon.ErrorStatus(err); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "product is not in the cart", nil)
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart input", nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", "requested quantity is not available", nil)
	case errors.Is(err, taxrate.ErrExhausted):
		common.JSONError(w, http.StatusServiceUnavailable, "TAX_RATE_UNAVAILABLE", "tax rate could not be determined", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}
