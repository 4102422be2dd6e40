package woocommerce

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ProductQuery filters GET /products. Only published products are listed.
type ProductQuery struct {
	PerPage int
}

func (q ProductQuery) values() url.Values {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	return url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"status":   {"publish"},
	}
}

// TaxRates lists the store's configured tax rates.
func (c *Client) TaxRates(ctx context.Context) ([]TaxRate, error) {
	var out []TaxRate
	if err := c.get(ctx, "taxes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Products lists products matching q.
func (c *Client) Products(ctx context.Context, q ProductQuery) ([]Product, error) {
	var out []Product
	if err := c.get(ctx, "products", q.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProductByID loads a single product.
func (c *Client) ProductByID(ctx context.Context, id int64) (Product, error) {
	var out Product
	if err := c.get(ctx, "products/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

// GeneralSettings lists the store's general settings.
func (c *Client) GeneralSettings(ctx context.Context) ([]Setting, error) {
	var out []Setting
	if err := c.get(ctx, "settings/general", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CouponByCode looks a coupon up by its code.
func (c *Client) CouponByCode(ctx context.Context, code string) (Coupon, error) {
	var out []Coupon
	if err := c.get(ctx, "coupons", url.Values{"code": {code}}, &out); err != nil {
		return Coupon{}, err
	}
	if len(out) == 0 {
		return Coupon{}, ErrNotFound
	}
	return out[0], nil
}

// CreateOrder posts a new order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	var out OrderResponse
	if err := c.post(ctx, "orders", req, &out); err != nil {
		return OrderResponse{}, err
	}
	if out.ID == 0 {
		return OrderResponse{}, fmt.Errorf("woocommerce: order created without id")
	}
	return out, nil
}
