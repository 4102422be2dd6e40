package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no order matches.
var ErrNotFound = errors.New("order not found")

// DefaultCustomer names anonymous counter sales.
const DefaultCustomer = "Walk-in Customer"

// LineItem is one sold product. Monetary fields are 2-dp strings.
type LineItem struct {
	ProductID      int64  `json:"productId"`
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	Quantity       int    `json:"quantity"`
	MRP            string `json:"mrp"`
	Price          string `json:"price"`
	TaxAmount      string `json:"taxAmount"`
	DiscountAmount string `json:"discountAmount"`
	Total          string `json:"total"`
}

// Order is a completed POS sale. Monetary fields are 2-dp strings.
type Order struct {
	ID            int64      `json:"id"`
	Number        string     `json:"orderNumber"`
	Status        string     `json:"status"`
	Currency      string     `json:"currency"`
	Total         string     `json:"total"`
	Subtotal      string     `json:"subtotal"`
	TaxTotal      string     `json:"taxTotal"`
	DiscountTotal string     `json:"discountTotal"`
	TaxRate       string     `json:"taxRate"`
	CouponCode    string     `json:"couponCode,omitempty"`
	CustomerName  string     `json:"customerName"`
	CashierName   string     `json:"cashierName"`
	PaymentMethod string     `json:"paymentMethod"`
	LineItems     []LineItem `json:"lineItems"`
	CreatedAt     time.Time  `json:"createdAt"`
	Synced        bool       `json:"synced"`
	RemoteID      *int64     `json:"remoteId,omitempty"`
}

// NumberFor formats the POS order number for t.
func NumberFor(t time.Time) string {
	return fmt.Sprintf("POS-%d", t.UnixMilli())
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o *Order) error
	FindByNumber(ctx context.Context, number string) (Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
	ListUnsynced(ctx context.Context, limit int) ([]Order, error)
	MarkSynced(ctx context.Context, id int64, remoteID int64) error
}

// NormalizeNumber accepts "POS-123", "pos-123" or a bare "123".
func NormalizeNumber(number string) string {
	n := strings.ToUpper(strings.TrimSpace(number))
	if n == "" || strings.HasPrefix(n, "POS-") {
		return n
	}
	return "POS-" + n
}
