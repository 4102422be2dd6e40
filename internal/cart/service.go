package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

// CouponResolver validates a coupon code and converts it for pricing.
type CouponResolver interface {
	Resolve(ctx context.Context, code string) (coupon.Record, *pricing.Coupon, error)
}

// RateSource supplies the effective cart-wide tax rate.
type RateSource interface {
	EffectiveRate(ctx context.Context) (taxrate.Resolution, error)
}

// Service orchestrates cart sessions.
type Service struct {
	Store    Store
	Products ProductFinder
	Coupons  CouponResolver
	Rates    RateSource
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// LineSummary is the receipt view of a single cart line.
type LineSummary struct {
	ProductID int64          `json:"productId"`
	Name      string         `json:"name"`
	SKU       string         `json:"sku,omitempty"`
	Quantity  int            `json:"quantity"`
	Detail    pricing.Detail `json:"pricing"`
}

// Summary is the priced view of a session.
type Summary struct {
	ID              string          `json:"id"`
	Coupon          *coupon.Record  `json:"coupon,omitempty"`
	Lines           []LineSummary   `json:"lines"`
	Totals          pricing.Totals  `json:"totals"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	TaxTier         string          `json:"taxTier"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// Create starts an empty session.
func (s *Service) Create(ctx context.Context) (Session, error) {
	now := s.now()
	sess := Session{ID: s.newID(), Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	if err := s.Store.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("save cart: %w", err)
	}
	return sess, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNotFound
	}
	return s.Store.Load(ctx, id)
}

// AddProduct adds qty units of a product, incrementing an existing line.
func (s *Service) AddProduct(ctx context.Context, id string, productID int64, qty int) (Session, error) {
	if qty < 1 || productID <= 0 {
		return Session{}, ErrInvalidInput
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	p, err := s.Products.FindProduct(ctx, productID)
	if err != nil {
		return Session{}, err
	}
	if !p.InStock() {
		return Session{}, ErrOutOfStock
	}

	var limit *int
	if p.ManageStock && p.StockQuantity != nil {
		q := *p.StockQuantity
		limit = &q
	}
	item := Item{
		ProductID:    p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		RegularPrice: p.RegularPrice,
		SalePrice:    p.SalePrice,
		StockLimit:   limit,
	}
	if idx := sess.find(productID); idx >= 0 {
		item.Quantity = sess.Items[idx].Quantity + qty
		if !item.allows(item.Quantity) {
			return Session{}, ErrOutOfStock
		}
		sess.Items[idx] = item
	} else {
		item.Quantity = qty
		if !item.allows(qty) {
			return Session{}, ErrOutOfStock
		}
		if _, err := item.Line(); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		sess.Items = append(sess.Items, item)
	}
	return s.save(ctx, sess)
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, id string, productID int64, qty int) (Session, error) {
	if qty < 1 {
		return Session{}, ErrInvalidInput
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	idx := sess.find(productID)
	if idx < 0 {
		return Session{}, ErrItemNotFound
	}
	if !sess.Items[idx].allows(qty) {
		return Session{}, ErrOutOfStock
	}
	sess.Items[idx].Quantity = qty
	return s.save(ctx, sess)
}

// Remove drops a line.
func (s *Service) Remove(ctx context.Context, id string, productID int64) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	idx := sess.find(productID)
	if idx < 0 {
		return Session{}, ErrItemNotFound
	}
	sess.Items = append(sess.Items[:idx], sess.Items[idx+1:]...)
	return s.save(ctx, sess)
}

// ApplyCoupon validates code and replaces any coupon already on the session.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Coupons == nil {
		return Session{}, coupon.ErrNotFound
	}
	rec, _, err := s.Coupons.Resolve(ctx, code)
	if err != nil {
		return Session{}, err
	}
	sess.Coupon = &rec
	return s.save(ctx, sess)
}

// RemoveCoupon detaches the coupon, if any.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Coupon = nil
	return s.save(ctx, sess)
}

// Clear drops every line and the coupon but keeps the session alive.
func (s *Service) Clear(ctx context.Context, id string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Items = []Item{}
	sess.Coupon = nil
	return s.save(ctx, sess)
}

// Discard deletes the session.
func (s *Service) Discard(ctx context.Context, id string) error {
	return s.Store.Delete(ctx, id)
}

// Summary prices the session with the effective tax rate.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return s.Price(ctx, sess)
}

// Price computes totals and per-line details for sess.
func (s *Service) Price(ctx context.Context, sess Session) (Summary, error) {
	res, err := s.Rates.EffectiveRate(ctx)
	if err != nil {
		return Summary{}, err
	}
	lines, err := sess.Lines()
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var applied *pricing.Coupon
	if sess.Coupon != nil {
		applied, err = sess.Coupon.ToPricing()
		if err != nil {
			s.Logger.Warn().Err(err).Str("coupon", sess.Coupon.Code).Msg("ignoring unusable coupon")
			applied = nil
		}
	}

	totals := pricing.Compute(lines, applied, res.Rate)
	out := Summary{
		ID:              sess.ID,
		Coupon:          sess.Coupon,
		Lines:           make([]LineSummary, 0, len(lines)),
		Totals:          totals.Rounded(),
		TaxRate:         res.Rate,
		TaxTier:         res.Tier,
		DiscountPercent: decimal.Zero,
	}
	if applied != nil {
		out.DiscountPercent = applied.DiscountPercent(totals.Subtotal).Round(2)
	}
	for i, l := range lines {
		it := sess.Items[i]
		out.Lines = append(out.Lines, LineSummary{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			Detail:    pricing.LineDetail(l, res.Rate),
		})
	}
	return out, nil
}

func (s *Service) save(ctx context.Context, sess Session) (Session, error) {
	sess.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("save cart: %w", err)
	}
	return sess, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
