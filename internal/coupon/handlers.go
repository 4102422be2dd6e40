package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Creator persists locally issued coupons.
type Creator interface {
	Create(ctx context.Context, rec Record) error
}

// Handler exposes coupon lookup and local coupon creation.
type Handler struct {
	Svc      *Service
	Store    Creator
	Validate *validator.Validate
}

type createRequest struct {
	Code          string     `json:"code" validate:"required,max=64"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=percent percentage fixed_cart"`
	Amount        string     `json:"amount" validate:"required"`
	MinimumAmount *string    `json:"minimumAmount"`
	MaximumAmount *string    `json:"maximumAmount"`
	UsageLimit    *int       `json:"usageLimit" validate:"omitempty,gte=0"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	Enabled       *bool      `json:"enabled"`
}

// Get returns a valid coupon by code.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := rec.ToPricing(); err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rec)
}

// Create stores a local coupon.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon store not configured", nil)
		return
	}
	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	rec, err := payload.toRecord()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.Store.Create(r.Context(), rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "coupon code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create coupon", nil)
		return
	}
	common.Data(w, http.StatusCreated, rec)
}

func (p createRequest) toRecord() (Record, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil || amount.IsNegative() {
		return Record{}, errors.New("amount must be a non-negative number")
	}
	rec := Record{
		Code:         NormalizeCode(p.Code),
		DiscountType: p.DiscountType,
		Amount:       amount,
		UsageLimit:   p.UsageLimit,
		ExpiresAt:    p.ExpiresAt,
		Enabled:      true,
		Source:       "local",
	}
	if p.Enabled != nil {
		rec.Enabled = *p.Enabled
	}
	if rec.Minimum, err = optionalDecimal(p.MinimumAmount); err != nil {
		return Record{}, errors.New("minimumAmount must be a number")
	}
	if rec.Maximum, err = optionalDecimal(p.MaximumAmount); err != nil {
		return Record{}, errors.New("maximumAmount must be a number")
	}
	return rec, nil
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "COUPON_NOT_FOUND", "coupon not found or expired", nil)
	case errors.Is(err, ErrExpired):
		common.JSONError(w, http.StatusNotFound, "COUPON_EXPIRED", "coupon not found or expired", nil)
	case errors.Is(err, ErrDisabled):
		common.JSONError(w, http.StatusNotFound, "COUPON_DISABLED", "coupon is not active", nil)
	case errors.Is(err, ErrUsageLimitReached):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_USAGE_LIMIT", "coupon usage limit reached", nil)
	case errors.Is(err, ErrUnsupportedType):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_UNSUPPORTED", "coupon type is not supported", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "unable to look up coupon", nil)
	}
}

// ErrorStatus maps coupon errors onto the AppError shape for other packages' handlers.
func ErrorStatus(err error) *common.AppError {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired), errors.Is(err, ErrDisabled):
		return common.NewAppError("COUPON_INVALID", "coupon not found or expired", http.StatusNotFound, err)
	case errors.Is(err, ErrUsageLimitReached):
		return common.NewAppError("COUPON_USAGE_LIMIT", "coupon usage limit reached", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrUnsupportedType):
		return common.NewAppError("COUPON_UNSUPPORTED", "coupon type is not supported", http.StatusUnprocessableEntity, err)
	default:
		return nil
	}
}
