package pricing

import "github.com/shopspring/decimal"

// Kind identifies a coupon discount type.
type Kind string

const (
	// KindPercentage discounts a percentage of the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixedCart discounts a fixed currency amount off the whole cart.
	KindFixedCart Kind = "fixed_cart"
)

// DiscountRule computes the raw discount for a subtotal before bounds are applied.
type DiscountRule interface {
	Kind() Kind
	discount(subtotal decimal.Decimal) decimal.Decimal
}

// Percentage takes Percent percent off the subtotal.
type Percentage struct {
	Percent decimal.Decimal
}

// Kind implements DiscountRule.
func (Percentage) Kind() Kind { return KindPercentage }

func (p Percentage) discount(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.Percent).Div(hundred)
}

// FixedCart takes Amount off the cart. It is equivalent to a percentage of
// Amount/subtotal×100 of the current subtotal.
type FixedCart struct {
	Amount decimal.Decimal
}

// Kind implements DiscountRule.
func (FixedCart) Kind() Kind { return KindFixedCart }

func (f FixedCart) discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	return f.Amount
}

// Coupon is the applied coupon snapshot consumed by Compute.
type Coupon struct {
	Code    string
	Rule    DiscountRule
	Minimum *decimal.Decimal
	Maximum *decimal.Decimal
}

// DiscountFor returns the discount amount for subtotal. A nil coupon, a
// subtotal under the minimum or a non-positive subtotal yields zero; the result
// is clamped to Maximum and never exceeds the subtotal.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || c.Rule == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	if c.Minimum != nil && subtotal.LessThan(*c.Minimum) {
		return decimal.Zero
	}
	d := c.Rule.discount(subtotal)
	if c.Maximum != nil && d.GreaterThan(*c.Maximum) {
		d = *c.Maximum
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// DiscountPercent reports the effective discount as a percentage of subtotal.
func (c *Coupon) DiscountPercent(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	return c.DiscountFor(subtotal).Div(subtotal).Mul(hundred)
}
