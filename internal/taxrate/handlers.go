package taxrate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ProductPricer resolves a product's effective, tax-inclusive unit price.
type ProductPricer interface {
	EffectivePrice(ctx context.Context, productID int64) (price decimal.Decimal, found bool, err error)
}

// Handler wires the tax rate service to HTTP.
type Handler struct {
	Svc      *Service
	Pricer   ProductPricer
	Validate *validator.Validate
}

type rateResponse struct {
	TaxRate    float64 `json:"taxRate"`
	Tier       string  `json:"tier"`
	ResolvedAt string  `json:"resolvedAt"`
}

// Rate returns the effective tax rate.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.EffectiveRate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toRateResponse(res))
}

// Refresh invalidates the cached rate and resolves it again.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Invalidate(r.Context()); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to invalidate tax rate", nil)
		return
	}
	h.Rate(w, r)
}

// Calculate extracts the tax included in a product's price for a quantity.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID int64 `json:"productId" validate:"required,gt=0"`
		Quantity  int   `json:"quantity" validate:"required,gte=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId and quantity are required", nil)
		return
	}
	if h.Pricer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product pricing not configured", nil)
		return
	}
	price, found, err := h.Pricer.EffectivePrice(r.Context(), payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "unable to load product", nil)
		return
	}
	if !found {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	res, err := h.Svc.EffectiveRate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	_, tax := pricing.ExtractTax(price.Mul(decimal.NewFromInt(int64(payload.Quantity))), res.Rate)
	common.JSON(w, http.StatusOK, map[string]any{
		"taxRate":   res.Rate.InexactFloat64(),
		"taxAmount": tax.StringFixed(pricing.CurrencyPlaces),
	})
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExhausted):
		common.JSONError(w, http.StatusServiceUnavailable, "TAX_RATE_UNAVAILABLE", "tax rate could not be determined", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve tax rate", nil)
	}
}

func toRateResponse(res Resolution) rateResponse {
	return rateResponse{
		TaxRate:    res.Rate.InexactFloat64(),
		Tier:       res.Tier,
		ResolvedAt: res.ResolvedAt.UTC().Format(time.RFC3339),
	}
}
