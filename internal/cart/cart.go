package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart session could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOutOfStock is returned when a product cannot be sold in the requested quantity.
	ErrOutOfStock = errors.New("product out of stock")
	// ErrProductNotFound is returned when the catalog does not know the product.
	ErrProductNotFound = errors.New("product not found")
	// ErrItemNotFound is returned when the cart has no line for the product.
	ErrItemNotFound = errors.New("cart item not found")
)

// Product is the catalog view the cart needs to add a line.
type Product struct {
	ID            int64
	Name          string
	SKU           string
	RegularPrice  decimal.Decimal
	SalePrice     *decimal.Decimal
	StockStatus   string
	ManageStock   bool
	StockQuantity *int
}

// InStock reports whether the catalog allows selling the product at all.
func (p Product) InStock() bool {
	if strings.EqualFold(p.StockStatus, "outofstock") {
		return false
	}
	if p.ManageStock && p.StockQuantity != nil && *p.StockQuantity <= 0 {
		return false
	}
	return true
}

// ProductFinder loads a product by id, returning ErrProductNotFound when unknown.
type ProductFinder interface {
	FindProduct(ctx context.Context, id int64) (Product, error)
}

// Item is a cart line with the product snapshot taken when it was added.
type Item struct {
	ProductID    int64            `json:"productId"`
	Name         string           `json:"name"`
	SKU          string           `json:"sku,omitempty"`
	RegularPrice decimal.Decimal  `json:"regularPrice"`
	SalePrice    *decimal.Decimal `json:"salePrice,omitempty"`
	Quantity     int              `json:"quantity"`
	StockLimit   *int             `json:"stockLimit,omitempty"`
}

// Line converts the item for the pricing engine.
func (i Item) Line() (pricing.Line, error) {
	return pricing.NewLine(i.RegularPrice, i.SalePrice, i.Quantity)
}

func (i Item) allows(qty int) bool {
	return i.StockLimit == nil || qty <= *i.StockLimit
}

// Session is a till's in-progress sale.
type Session struct {
	ID        string         `json:"id"`
	Items     []Item         `json:"items"`
	Coupon    *coupon.Record `json:"coupon,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (s *Session) find(productID int64) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Lines converts every item for the pricing engine.
func (s Session) Lines() ([]pricing.Line, error) {
	lines := make([]pricing.Line, 0, len(s.Items))
	for _, it := range s.Items {
		l, err := it.Line()
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}
