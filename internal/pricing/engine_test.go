package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func line(t *testing.T, price string, qty int) Line {
	t.Helper()
	l, err := NewLine(dec(price), nil, qty)
	require.NoError(t, err)
	return l
}

func TestComputeTaxInclusiveNoCoupon(t *testing.T) {
	totals := Compute([]Line{line(t, "118", 2)}, nil, dec("18"))
	requireDec(t, "236", totals.Subtotal)
	requireDec(t, "0", totals.Discount)
	requireDec(t, "36", totals.Tax)
	requireDec(t, "236", totals.GrandTotal)
}

func TestComputePercentageCoupon(t *testing.T) {
	coupon := &Coupon{Code: "TEN", Rule: Percentage{Percent: dec("10")}}
	totals := Compute([]Line{line(t, "118", 2)}, coupon, dec("18"))
	requireDec(t, "236", totals.Subtotal)
	requireDec(t, "23.6", totals.Discount)
	requireDec(t, "212.4", totals.GrandTotal)
	requireDec(t, "32.4", totals.Tax)
}

func TestComputeEmptyCart(t *testing.T) {
	coupon := &Coupon{Rule: FixedCart{Amount: dec("50")}}
	totals := Compute(nil, coupon, dec("18"))
	for _, v := range []decimal.Decimal{totals.Subtotal, totals.Tax, totals.Discount, totals.GrandTotal} {
		requireDec(t, "0", v)
	}
}

func TestComputeMinimumNotMet(t *testing.T) {
	coupon := &Coupon{Rule: Percentage{Percent: dec("20")}, Minimum: ptr("500")}
	totals := Compute([]Line{line(t, "100", 3)}, coupon, dec("18"))
	requireDec(t, "0", totals.Discount)
	requireDec(t, "300", totals.GrandTotal)
}

func TestComputeMaximumClamp(t *testing.T) {
	coupon := &Coupon{Rule: Percentage{Percent: dec("50")}, Maximum: ptr("100")}
	totals := Compute([]Line{line(t, "1000", 1)}, coupon, dec("0"))
	requireDec(t, "100", totals.Discount)
	requireDec(t, "900", totals.GrandTotal)
	requireDec(t, "0", totals.Tax)
}

func TestComputeMaximumClampUnevenSubtotal(t *testing.T) {
	coupon := &Coupon{Rule: Percentage{Percent: dec("50")}, Maximum: ptr("100")}
	totals := Compute([]Line{line(t, "100", 3)}, coupon, dec("12"))
	requireDec(t, "100", totals.Discount)
	requireDec(t, "200", totals.GrandTotal)
}

func TestComputeFixedCart(t *testing.T) {
	coupon := &Coupon{Rule: FixedCart{Amount: dec("36")}}
	totals := Compute([]Line{line(t, "118", 2)}, coupon, dec("18"))
	requireDec(t, "36", totals.Discount)
	requireDec(t, "200", totals.GrandTotal)
	requireDec(t, "30.51", totals.Tax)
	requireDec(t, "15.2542", coupon.DiscountPercent(totals.Subtotal).Round(4))
}

func TestComputeFixedCartLargerThanSubtotal(t *testing.T) {
	coupon := &Coupon{Rule: FixedCart{Amount: dec("500")}}
	totals := Compute([]Line{line(t, "40", 1)}, coupon, dec("18"))
	requireDec(t, "40", totals.Discount)
	requireDec(t, "0", totals.GrandTotal)
	requireDec(t, "0", totals.Tax)
}

func TestComputeNegativeRateIsZero(t *testing.T) {
	totals := Compute([]Line{line(t, "99.99", 1)}, nil, dec("-5"))
	requireDec(t, "0", totals.Tax)
	requireDec(t, "99.99", totals.GrandTotal)
}

func TestComputeInvariants(t *testing.T) {
	lines := []Line{line(t, "19.99", 3), line(t, "0.35", 7), line(t, "1249.5", 1)}
	coupons := []*Coupon{
		nil,
		{Rule: Percentage{Percent: dec("12.5")}},
		{Rule: FixedCart{Amount: dec("33.33")}, Minimum: ptr("10")},
		{Rule: Percentage{Percent: dec("80")}, Maximum: ptr("250")},
	}
	rates := []string{"0", "5", "12", "18", "28", "100"}
	for _, c := range coupons {
		for _, r := range rates {
			first := Compute(lines, c, dec(r))
			second := Compute(lines, c, dec(r))
			require.Equal(t, first, second)
			require.True(t, first.GrandTotal.Equal(first.Subtotal.Sub(first.Discount)))
			require.True(t, first.Tax.LessThanOrEqual(first.GrandTotal))
		}
	}
}

func TestRoundedTotals(t *testing.T) {
	coupon := &Coupon{Rule: Percentage{Percent: dec("33.333")}}
	totals := Compute([]Line{line(t, "10.01", 1)}, coupon, dec("18")).Rounded()
	requireDec(t, "10.01", totals.Subtotal)
	requireDec(t, "3.34", totals.Discount)
	requireDec(t, "6.67", totals.GrandTotal)
}

func TestRoundedTotalsBalanceOnHalfCentDiscount(t *testing.T) {
	coupon := &Coupon{Rule: Percentage{Percent: dec("5")}}
	full := Compute([]Line{line(t, "10.10", 1)}, coupon, dec("18"))
	requireDec(t, "0.51", full.Discount)
	requireDec(t, "9.59", full.GrandTotal)
	requireDec(t, "1.46", full.Tax)

	totals := full.Rounded()
	requireDec(t, "0.51", totals.Discount)
	requireDec(t, "9.59", totals.GrandTotal)
	require.True(t, totals.GrandTotal.Equal(totals.Subtotal.Sub(totals.Discount)))
}

func TestNewLine(t *testing.T) {
	l, err := NewLine(dec("120"), ptr("99"), 2)
	require.NoError(t, err)
	requireDec(t, "99", l.UnitPrice)
	requireDec(t, "198", l.Total())

	l, err = NewLine(dec("120"), ptr("150"), 1)
	require.NoError(t, err)
	requireDec(t, "120", l.UnitPrice)

	_, err = NewLine(dec("10"), nil, 0)
	require.True(t, errors.Is(err, ErrInvalidLine))
	_, err = NewLine(dec("-1"), nil, 1)
	require.True(t, errors.Is(err, ErrInvalidLine))
	_, err = NewLine(dec("10"), ptr("-2"), 1)
	require.True(t, errors.Is(err, ErrInvalidLine))
}

func TestLineDetail(t *testing.T) {
	l, err := NewLine(dec("150"), ptr("118"), 2)
	require.NoError(t, err)
	d := LineDetail(l, dec("18"))
	requireDec(t, "150", d.MRP)
	requireDec(t, "118", d.SalePrice)
	requireDec(t, "64", d.DiscountPortion)
	requireDec(t, "36", d.TaxPortion)
	requireDec(t, "236", d.LineTotal)
	require.True(t, d.DiscountPortion.Add(d.TaxPortion).LessThanOrEqual(d.LineTotal))
}

func TestLineDetailBoundedByMRP(t *testing.T) {
	for _, sale := range []string{"1", "49.5", "99", "100"} {
		l, err := NewLine(dec("100"), ptr(sale), 3)
		require.NoError(t, err)
		d := LineDetail(l, dec("28"))
		require.True(t, d.DiscountPortion.GreaterThanOrEqual(decimal.Zero))
		mrpTotal := d.MRP.Mul(decimal.NewFromInt(3))
		require.True(t, d.DiscountPortion.Add(d.TaxPortion).LessThanOrEqual(mrpTotal))
	}
}

func TestExtractTax(t *testing.T) {
	base, tax := ExtractTax(dec("112"), dec("12"))
	requireDec(t, "100", base)
	requireDec(t, "12", tax)

	base, tax = ExtractTax(dec("10"), dec("0"))
	requireDec(t, "10", base)
	requireDec(t, "0", tax)
}
