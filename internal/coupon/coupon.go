package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

var (
	// ErrNotFound is returned when no source knows the coupon code.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon's expiry has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrDisabled is returned for coupons switched off by the store.
	ErrDisabled = errors.New("coupon disabled")
	// ErrUsageLimitReached indicates the coupon has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrUnsupportedType is returned for discount types the pricing engine cannot apply.
	ErrUnsupportedType = errors.New("coupon discount type not supported")
)

// Record is a coupon as stored upstream or locally.
type Record struct {
	Code         string           `json:"code"`
	DiscountType string           `json:"discountType"`
	Amount       decimal.Decimal  `json:"amount"`
	Minimum      *decimal.Decimal `json:"minimumAmount,omitempty"`
	Maximum      *decimal.Decimal `json:"maximumAmount,omitempty"`
	UsageLimit   *int             `json:"usageLimit,omitempty"`
	UsedCount    int              `json:"usedCount"`
	ExpiresAt    *time.Time       `json:"expiresAt,omitempty"`
	Enabled      bool             `json:"enabled"`
	Source       string           `json:"source,omitempty"`
}

// NormalizeCode trims and upper-cases a coupon code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the coupon can be applied at the provided instant.
func (r Record) Validate(now time.Time) error {
	if !r.Enabled {
		return ErrDisabled
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit > 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// ToPricing converts the record into the engine's coupon.
func (r Record) ToPricing() (*pricing.Coupon, error) {
	if r.Amount.IsNegative() {
		return nil, fmt.Errorf("coupon %s: negative amount", r.Code)
	}
	var rule pricing.DiscountRule
	switch strings.ToLower(strings.TrimSpace(r.DiscountType)) {
	case "percent", "percentage":
		rule = pricing.Percentage{Percent: r.Amount}
	case "fixed_cart":
		rule = pricing.FixedCart{Amount: r.Amount}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, r.DiscountType)
	}
	return &pricing.Coupon{
		Code:    r.Code,
		Rule:    rule,
		Minimum: positiveOrNil(r.Minimum),
		Maximum: positiveOrNil(r.Maximum),
	}, nil
}

// positiveOrNil treats zero bounds as absent, matching how stores publish "no limit".
func positiveOrNil(v *decimal.Decimal) *decimal.Decimal {
	if v == nil || !v.IsPositive() {
		return nil
	}
	out := *v
	return &out
}
