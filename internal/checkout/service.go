package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/order"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrEmptyCart is returned when a session without lines is checked out.
var ErrEmptyCart = errors.New("cart is empty")

const (
	defaultCashier       = "POS User"
	defaultPaymentMethod = "cash"
)

// Carts is the cart surface checkout depends on.
type Carts interface {
	Get(ctx context.Context, id string) (cart.Session, error)
	Price(ctx context.Context, sess cart.Session) (cart.Summary, error)
	Discard(ctx context.Context, id string) error
}

// Redeemer records coupon usage once an order is placed.
type Redeemer interface {
	Redeem(ctx context.Context, code string) error
}

// Input describes a checkout request.
type Input struct {
	CartID        string
	CustomerName  string
	CashierName   string
	PaymentMethod string
}

// Service turns cart sessions into completed orders.
type Service struct {
	Carts    Carts
	Orders   order.Store
	Coupons  Redeemer
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Checkout prices the session, persists the order and discards the session.
func (s *Service) Checkout(ctx context.Context, in Input) (order.Order, error) {
	o, err := s.checkout(ctx, in)
	switch {
	case err == nil:
		record("success")
	case errors.Is(err, ErrEmptyCart):
		record("empty")
	default:
		record("error")
	}
	return o, err
}

func (s *Service) checkout(ctx context.Context, in Input) (order.Order, error) {
	sess, err := s.Carts.Get(ctx, in.CartID)
	if err != nil {
		return order.Order{}, err
	}
	if len(sess.Items) == 0 {
		return order.Order{}, ErrEmptyCart
	}
	summary, err := s.Carts.Price(ctx, sess)
	if err != nil {
		return order.Order{}, err
	}

	now := s.now()
	o := order.Order{
		Number:        order.NumberFor(now),
		Status:        "completed",
		Currency:      s.Currency,
		Total:         money(summary.Totals.GrandTotal),
		Subtotal:      money(summary.Totals.Subtotal),
		TaxTotal:      money(summary.Totals.Tax),
		DiscountTotal: money(summary.Totals.Discount),
		TaxRate:       summary.TaxRate.StringFixed(2),
		CustomerName:  orDefault(in.CustomerName, order.DefaultCustomer),
		CashierName:   orDefault(in.CashierName, defaultCashier),
		PaymentMethod: orDefault(in.PaymentMethod, defaultPaymentMethod),
		LineItems:     make([]order.LineItem, 0, len(summary.Lines)),
		CreatedAt:     now,
	}
	if summary.Coupon != nil && summary.Totals.Discount.IsPositive() {
		o.CouponCode = summary.Coupon.Code
	}
	for _, l := range summary.Lines {
		o.LineItems = append(o.LineItems, order.LineItem{
			ProductID:      l.ProductID,
			Name:           l.Name,
			SKU:            l.SKU,
			Quantity:       l.Quantity,
			MRP:            money(l.Detail.MRP),
			Price:          money(l.Detail.SalePrice),
			TaxAmount:      money(l.Detail.TaxPortion),
			DiscountAmount: money(l.Detail.DiscountPortion),
			Total:          money(l.Detail.LineTotal),
		})
	}

	if err := s.Orders.Create(ctx, &o); err != nil {
		return order.Order{}, fmt.Errorf("persist order: %w", err)
	}
	log := s.Logger.With().Str("order", o.Number).Logger()
	if o.CouponCode != "" && s.Coupons != nil {
		if err := s.Coupons.Redeem(ctx, o.CouponCode); err != nil {
			log.Warn().Err(err).Str("coupon", o.CouponCode).Msg("coupon usage not recorded")
		}
	}
	if err := s.Carts.Discard(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("cart", sess.ID).Msg("cart session not discarded")
	}
	log.Info().Str("total", o.Total).Int("lines", len(o.LineItems)).Msg("order completed")
	return o, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func money(d decimal.Decimal) string {
	return pricing.RoundMoney(d).StringFixed(pricing.CurrencyPlaces)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func record(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
