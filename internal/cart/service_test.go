package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type productMap map[int64]Product

func (m productMap) FindProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

type staticCoupons map[string]coupon.Record

func (m staticCoupons) Resolve(_ context.Context, code string) (coupon.Record, *pricing.Coupon, error) {
	rec, ok := m[coupon.NormalizeCode(code)]
	if !ok {
		return coupon.Record{}, nil, coupon.ErrNotFound
	}
	c, err := rec.ToPricing()
	if err != nil {
		return coupon.Record{}, nil, err
	}
	return rec, c, nil
}

type staticRate struct {
	res taxrate.Resolution
	err error
}

func (s staticRate) EffectiveRate(context.Context) (taxrate.Resolution, error) {
	return s.res, s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int { return &v }

func testProducts() productMap {
	return productMap{
		1: {ID: 1, Name: "Basmati Rice 1kg", SKU: "RICE-1", RegularPrice: dec("118"), SalePrice: decPtr("100"), StockStatus: "instock"},
		2: {ID: 2, Name: "Olive Oil", RegularPrice: dec("59"), StockStatus: "instock", ManageStock: true, StockQuantity: intPtr(3)},
		3: {ID: 3, Name: "Saffron", RegularPrice: dec("500"), StockStatus: "outofstock"},
		4: {ID: 4, Name: "Tea", RegularPrice: dec("20"), StockStatus: "instock", ManageStock: true, StockQuantity: intPtr(0)},
	}
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ids := 0
	svc := &Service{
		Store:    RedisStore{Cache: cache.New(client, time.Hour)},
		Products: testProducts(),
		Coupons: staticCoupons{
			"SAVE10": {Code: "SAVE10", DiscountType: "percent", Amount: dec("10"), Enabled: true},
			"FLAT50": {Code: "FLAT50", DiscountType: "fixed_cart", Amount: dec("50"), Enabled: true},
		},
		Rates: staticRate{res: taxrate.Resolution{Rate: dec("18"), Tier: "price_pairs", ResolvedAt: fixedNow}},
		Now:   func() time.Time { return fixedNow },
		NewID: func() string {
			ids++
			return fmt.Sprintf("cart-%d", ids)
		},
	}
	return svc, mr
}

func TestCreateAndGet(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, "cart-1", sess.ID)
	require.True(t, mr.Exists("pos:cart:cart-1"))
	require.Equal(t, time.Hour, mr.TTL("pos:cart:cart-1"))

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, got.Items)

	_, err = svc.Get(ctx, "unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddProductIncrementsExistingLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.AddProduct(ctx, sess.ID, 1, 1)
	require.NoError(t, err)
	got, err := svc.AddProduct(ctx, sess.ID, 1, 1)
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	require.Equal(t, 2, got.Items[0].Quantity)
	require.Equal(t, "RICE-1", got.Items[0].SKU)
}

func TestAddProductStockRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.AddProduct(ctx, sess.ID, 3, 1)
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.AddProduct(ctx, sess.ID, 4, 1)
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.AddProduct(ctx, sess.ID, 2, 4)
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.AddProduct(ctx, sess.ID, 2, 2)
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, sess.ID, 2, 2)
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.AddProduct(ctx, sess.ID, 99, 1)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.AddProduct(ctx, sess.ID, 1, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, sess.ID, 2, 1)
	require.NoError(t, err)

	got, err := svc.UpdateQuantity(ctx, sess.ID, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 3, got.Items[0].Quantity)

	_, err = svc.UpdateQuantity(ctx, sess.ID, 2, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateQuantity(ctx, sess.ID, 2, -1)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateQuantity(ctx, sess.ID, 2, 4)
	require.ErrorIs(t, err, ErrOutOfStock)
	_, err = svc.UpdateQuantity(ctx, sess.ID, 1, 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, sess.ID, 1, 1)
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, sess.ID, 2, 1)
	require.NoError(t, err)

	got, err := svc.Remove(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, int64(2), got.Items[0].ProductID)

	_, err = svc.Remove(ctx, sess.ID, 1)
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.ApplyCoupon(ctx, sess.ID, "save10")
	require.NoError(t, err)
	got, err = svc.Clear(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, got.Items)
	require.Nil(t, got.Coupon)
}

func TestApplyCouponReplacesPrevious(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	got, err := svc.ApplyCoupon(ctx, sess.ID, "save10")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", got.Coupon.Code)

	got, err = svc.ApplyCoupon(ctx, sess.ID, "FLAT50")
	require.NoError(t, err)
	require.Equal(t, "FLAT50", got.Coupon.Code)

	_, err = svc.ApplyCoupon(ctx, sess.ID, "nope")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	got, err = svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "FLAT50", got.Coupon.Code)

	got, err = svc.RemoveCoupon(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, got.Coupon)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, sess.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.ApplyCoupon(ctx, sess.ID, "SAVE10")
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "200", sum.Totals.Subtotal.String())
	require.Equal(t, "20", sum.Totals.Discount.String())
	require.Equal(t, "27.46", sum.Totals.Tax.String())
	require.Equal(t, "180", sum.Totals.GrandTotal.String())
	require.Equal(t, "price_pairs", sum.TaxTier)
	require.Equal(t, "10", sum.DiscountPercent.String())

	require.Len(t, sum.Lines, 1)
	line := sum.Lines[0]
	require.Equal(t, "118", line.Detail.MRP.String())
	require.Equal(t, "100", line.Detail.SalePrice.String())
	require.Equal(t, "36", line.Detail.DiscountPortion.String())
	require.Equal(t, "200", line.Detail.LineTotal.String())
}

func TestSummaryEmptyCart(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, sum.Totals.GrandTotal.IsZero())
	require.True(t, sum.Totals.Tax.IsZero())
	require.Empty(t, sum.Lines)
}

func TestSummaryPropagatesExhaustedRate(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Rates = staticRate{err: taxrate.ErrExhausted}
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.Summary(ctx, sess.ID)
	require.True(t, errors.Is(err, taxrate.ErrExhausted))
}

func TestRedisStoreExpiry(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
