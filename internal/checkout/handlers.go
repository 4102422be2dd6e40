package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type request struct {
	CartID        string `json:"cartId" validate:"required"`
	CustomerName  string `json:"customerName" validate:"max=120"`
	CashierName   string `json:"cashierName" validate:"max=120"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=cash card upi other"`
}

// Create completes the sale for a cart session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	v := h.Validate
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	cashier := payload.CashierName
	if cashier == "" {
		cashier = r.Header.Get(obs.CashierHeader)
	}

	o, err := h.Svc.Checkout(r.Context(), Input{
		CartID:        payload.CartID,
		CustomerName:  payload.CustomerName,
		CashierName:   cashier,
		PaymentMethod: payload.PaymentMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
		case errors.Is(err, ErrEmptyCart):
			common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart has no items", nil)
		case errors.Is(err, taxrate.ErrExhausted):
			common.JSONError(w, http.StatusServiceUnavailable, "TAX_RATE_UNAVAILABLE", "tax rate could not be determined", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
		}
		return
	}
	common.Data(w, http.StatusCreated, o)
}
