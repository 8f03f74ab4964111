package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// compute calculates the discount amount a coupon yields against an order
// subtotal. Percentage discounts are clamped to MaxDiscount when a cap is
// set; fixed discounts are flat. Results are rounded to 2 decimal places.
func compute(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case DiscountPercentage:
		amount := subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
		return amount.Round(2)
	case DiscountFixed:
		return c.Value.Round(2)
	}
	return decimal.Zero
}
