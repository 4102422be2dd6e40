package woocommerce

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the subset of the WooCommerce product resource the POS reads.
type Product struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	SKU           string     `json:"sku"`
	Status        string     `json:"status"`
	Price         string     `json:"price"`
	RegularPrice  string     `json:"regular_price"`
	SalePrice     string     `json:"sale_price"`
	TaxStatus     string     `json:"tax_status"`
	TaxClass      string     `json:"tax_class"`
	ManageStock   bool       `json:"manage_stock"`
	StockQuantity *int       `json:"stock_quantity"`
	StockStatus   string     `json:"stock_status"`
	MetaData      []MetaData `json:"meta_data,omitempty"`
}

// MetaData is a WooCommerce key/value extension field.
type MetaData struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Taxable reports whether the store charges tax on the product.
func (p Product) Taxable() bool {
	return p.TaxStatus == "" || p.TaxStatus == "taxable"
}

// Regular parses regular_price, falling back to price.
func (p Product) Regular() (decimal.Decimal, bool) {
	if d, ok := parseMoney(p.RegularPrice); ok {
		return d, true
	}
	return parseMoney(p.Price)
}

// Sale parses sale_price when set.
func (p Product) Sale() (decimal.Decimal, bool) {
	return parseMoney(p.SalePrice)
}

// Effective parses price, the amount a customer pays per unit.
func (p Product) Effective() (decimal.Decimal, bool) {
	if d, ok := parseMoney(p.Price); ok {
		return d, true
	}
	if d, ok := p.Sale(); ok {
		return d, true
	}
	return p.Regular()
}

// TaxRate is a row of /taxes.
type TaxRate struct {
	ID      int64  `json:"id"`
	Country string `json:"country"`
	Rate    string `json:"rate"`
	Name    string `json:"name"`
	Class   string `json:"class"`
}

// Setting is a row of /settings/general.
type Setting struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// Coupon is the subset of the WooCommerce coupon resource the POS reads.
type Coupon struct {
	ID             int64   `json:"id"`
	Code           string  `json:"code"`
	Amount         string  `json:"amount"`
	DiscountType   string  `json:"discount_type"`
	Status         string  `json:"status"`
	UsageLimit     *int    `json:"usage_limit"`
	UsageCount     int     `json:"usage_count"`
	MinimumAmount  string  `json:"minimum_amount"`
	MaximumAmount  string  `json:"maximum_amount"`
	DateExpires    *string `json:"date_expires"`
	DateExpiresGMT *string `json:"date_expires_gmt"`
}

// ExpiresAt parses the GMT expiry, falling back to the store-local one.
func (c Coupon) ExpiresAt() *time.Time {
	for _, raw := range []*string{c.DateExpiresGMT, c.DateExpires} {
		if raw == nil || strings.TrimSpace(*raw) == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, strings.TrimSpace(*raw)); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

// OrderRequest is the payload for POST /orders.
type OrderRequest struct {
	Status        string          `json:"status"`
	SetPaid       bool            `json:"set_paid"`
	Currency      string          `json:"currency,omitempty"`
	CustomerNote  string          `json:"customer_note"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	LineItems     []OrderLineItem `json:"line_items"`
	MetaData      []MetaData      `json:"meta_data"`
}

// OrderLineItem is a line of OrderRequest.
type OrderLineItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price,omitempty"`
	Total     string `json:"total"`
}

// OrderResponse is the part of the created order the POS keeps.
type OrderResponse struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Status string `json:"status"`
}

func parseMoney(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
