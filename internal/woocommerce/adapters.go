package woocommerce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/order"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

// SampleTaxableProducts implements taxrate.Catalog.
func (c *Client) SampleTaxableProducts(ctx context.Context, n int) ([]taxrate.PricePair, error) {
	products, err := c.Products(ctx, ProductQuery{PerPage: n})
	if err != nil {
		return nil, err
	}
	out := make([]taxrate.PricePair, 0, len(products))
	for _, p := range products {
		regular, _ := p.Regular()
		effective, _ := p.Effective()
		out = append(out, taxrate.PricePair{
			Name:           p.Name,
			RegularPrice:   regular,
			EffectivePrice: effective,
			Taxable:        p.Taxable(),
		})
	}
	return out, nil
}

// ExplicitTaxRates implements taxrate.Catalog.
func (c *Client) ExplicitTaxRates(ctx context.Context) ([]taxrate.RateRecord, error) {
	rates, err := c.TaxRates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]taxrate.RateRecord, 0, len(rates))
	for _, r := range rates {
		out = append(out, taxrate.RateRecord{Rate: r.Rate, Class: r.Class})
	}
	return out, nil
}

// StoreLocale implements taxrate.Catalog. It returns the woocommerce_default_country
// value, e.g. "IN:MH", or "" when unset.
func (c *Client) StoreLocale(ctx context.Context) (string, error) {
	settings, err := c.GeneralSettings(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range settings {
		if s.ID != "woocommerce_default_country" {
			continue
		}
		if v, ok := s.Value.(string); ok {
			return v, nil
		}
	}
	return "", nil
}

// FindProduct implements cart.ProductFinder.
func (c *Client) FindProduct(ctx context.Context, id int64) (cart.Product, error) {
	p, err := c.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return cart.Product{}, cart.ErrProductNotFound
		}
		return cart.Product{}, err
	}
	return toCartProduct(p)
}

func toCartProduct(p Product) (cart.Product, error) {
	regular, ok := p.Regular()
	if !ok {
		return cart.Product{}, fmt.Errorf("%w: product %d has no price", cart.ErrInvalidInput, p.ID)
	}
	out := cart.Product{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		RegularPrice:  regular,
		StockStatus:   p.StockStatus,
		ManageStock:   p.ManageStock,
		StockQuantity: p.StockQuantity,
	}
	if sale, ok := p.Sale(); ok {
		out.SalePrice = &sale
	}
	return out, nil
}

// EffectivePrice implements taxrate.ProductPricer. A sale price counts only
// when it is below the regular price, matching the cart.
func (c *Client) EffectivePrice(ctx context.Context, id int64) (decimal.Decimal, bool, error) {
	p, err := c.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	regular, hasRegular := p.Regular()
	sale, hasSale := p.Sale()
	switch {
	case hasSale && (!hasRegular || sale.LessThan(regular)):
		return sale, true, nil
	case hasRegular:
		return regular, true, nil
	}
	return decimal.Zero, false, nil
}

// FindCoupon implements coupon.Finder.
func (c *Client) FindCoupon(ctx context.Context, code string) (coupon.Record, error) {
	wc, err := c.CouponByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return coupon.Record{}, coupon.ErrNotFound
		}
		return coupon.Record{}, err
	}
	amount, ok := parseMoney(wc.Amount)
	if !ok {
		return coupon.Record{}, fmt.Errorf("woocommerce: coupon %s has invalid amount %q", wc.Code, wc.Amount)
	}
	rec := coupon.Record{
		Code:         coupon.NormalizeCode(wc.Code),
		DiscountType: wc.DiscountType,
		Amount:       amount,
		UsageLimit:   wc.UsageLimit,
		UsedCount:    wc.UsageCount,
		ExpiresAt:    wc.ExpiresAt(),
		Enabled:      wc.Status == "" || wc.Status == "publish",
		Source:       "woocommerce",
	}
	if d, ok := parseMoney(wc.MinimumAmount); ok {
		rec.Minimum = &d
	}
	if d, ok := parseMoney(wc.MaximumAmount); ok {
		rec.Maximum = &d
	}
	return rec, nil
}

// PushOrder creates o upstream and returns the WooCommerce order id.
func (c *Client) PushOrder(ctx context.Context, o order.Order) (int64, error) {
	resp, err := c.CreateOrder(ctx, NewOrderRequest(o))
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// NewOrderRequest maps a POS order onto the WooCommerce create-order payload.
func NewOrderRequest(o order.Order) OrderRequest {
	customer := strings.TrimSpace(o.CustomerName)
	if customer == "" {
		customer = order.DefaultCustomer
	}
	req := OrderRequest{
		Status:        "completed",
		SetPaid:       true,
		Currency:      o.Currency,
		CustomerNote:  "POS Order - " + customer,
		PaymentMethod: o.PaymentMethod,
		LineItems:     make([]OrderLineItem, 0, len(o.LineItems)),
		MetaData: []MetaData{
			{Key: "_pos_order", Value: "true"},
			{Key: "_pos_order_number", Value: o.Number},
			{Key: "_cashier_name", Value: o.CashierName},
		},
	}
	if o.CouponCode != "" {
		req.MetaData = append(req.MetaData,
			MetaData{Key: "_pos_coupon", Value: o.CouponCode},
			MetaData{Key: "_pos_discount_total", Value: o.DiscountTotal},
		)
	}
	for _, li := range o.LineItems {
		req.LineItems = append(req.LineItems, OrderLineItem{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			Price:     li.Price,
			Total:     li.Total,
		})
	}
	return req
}
