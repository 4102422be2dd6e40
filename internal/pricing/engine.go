package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places used when rounding money for display and persistence.
const CurrencyPlaces = 2

// ErrInvalidLine is returned when a cart line is constructed with a negative price or a quantity below one.
var ErrInvalidLine = errors.New("pricing: invalid cart line")

var hundred = decimal.NewFromInt(100)

// Line describes one product's contribution to the cart. UnitPrice is the effective,
// tax-inclusive price; RegularPrice is kept for receipt detail only.
type Line struct {
	RegularPrice decimal.Decimal
	UnitPrice    decimal.Decimal
	Quantity     int
}

// NewLine validates prices and quantity and resolves the effective unit price.
// A sale price only applies when it is present and lower than the regular price.
func NewLine(regular decimal.Decimal, sale *decimal.Decimal, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, fmt.Errorf("quantity %d: %w", qty, ErrInvalidLine)
	}
	if regular.IsNegative() {
		return Line{}, fmt.Errorf("regular price %s: %w", regular, ErrInvalidLine)
	}
	unit := regular
	if sale != nil {
		if sale.IsNegative() {
			return Line{}, fmt.Errorf("sale price %s: %w", sale, ErrInvalidLine)
		}
		if sale.LessThan(regular) {
			unit = *sale
		}
	}
	return Line{RegularPrice: regular, UnitPrice: unit, Quantity: qty}, nil
}

// Total returns unit price multiplied by quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals aggregates computed pricing components. Discount and Tax are already
// currency rounded; Subtotal and GrandTotal carry the line prices' precision.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"total"`
}

// Rounded returns the totals at currency places. GrandTotal is derived from
// the rounded subtotal and discount so the two-decimal view still balances.
func (t Totals) Rounded() Totals {
	subtotal, discount := RoundMoney(t.Subtotal), RoundMoney(t.Discount)
	grand := subtotal.Sub(discount)
	tax := RoundMoney(t.Tax)
	if tax.GreaterThan(grand) {
		tax = grand
	}
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Discount:   discount,
		GrandTotal: grand,
	}
}

// Compute calculates cart totals under tax-inclusive pricing. Tax is extracted
// from the discounted subtotal and never added on top of it.
func Compute(lines []Line, coupon *Coupon, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(l.Total())
	}
	discount := decimal.Min(RoundMoney(coupon.DiscountFor(subtotal)), subtotal)
	after := subtotal.Sub(discount)
	_, tax := ExtractTax(after, taxRatePercent)
	if tax.GreaterThan(after) {
		tax = after
	}
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Discount:   discount,
		GrandTotal: after,
	}
}

// ExtractTax splits a tax-inclusive amount into its base price and tax portion,
// both rounded to currency places. Non-positive rates extract nothing.
func ExtractTax(inclusive, taxRatePercent decimal.Decimal) (base, tax decimal.Decimal) {
	if !taxRatePercent.IsPositive() || !inclusive.IsPositive() {
		return RoundMoney(inclusive), decimal.Zero
	}
	divisor := decimal.NewFromInt(1).Add(taxRatePercent.Div(hundred))
	exact := inclusive.Div(divisor)
	return RoundMoney(exact), RoundMoney(inclusive.Sub(exact))
}

// Detail is the per-line receipt breakdown.
type Detail struct {
	MRP             decimal.Decimal `json:"mrp"`
	SalePrice       decimal.Decimal `json:"salePrice"`
	TaxPortion      decimal.Decimal `json:"tax"`
	DiscountPortion decimal.Decimal `json:"discount"`
	LineTotal       decimal.Decimal `json:"total"`
}

// LineDetail computes the receipt breakdown for a single line.
func LineDetail(l Line, taxRatePercent decimal.Decimal) Detail {
	mrp := l.RegularPrice
	if mrp.IsZero() {
		mrp = l.UnitPrice
	}
	qty := decimal.NewFromInt(int64(l.Quantity))
	lineTotal := l.UnitPrice.Mul(qty)
	discount := decimal.Max(decimal.Zero, mrp.Sub(l.UnitPrice)).Mul(qty)
	_, tax := ExtractTax(lineTotal, taxRatePercent)
	return Detail{
		MRP:             mrp,
		SalePrice:       l.UnitPrice,
		TaxPortion:      tax,
		DiscountPortion: discount,
		LineTotal:       lineTotal,
	}
}

// RoundMoney rounds half away from zero to currency places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}
