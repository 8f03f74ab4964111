package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order subtotal, capped at
	// MaxDiscount when a cap is set.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat amount regardless of subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a coupon code does not exist, is
	// deactivated, or is past its expiry date.
	ErrInvalidCoupon = errors.New("invalid or expired coupon")
	// ErrCodeTaken is returned when creating a coupon whose code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// MinPurchaseError is returned when an order subtotal is below the coupon's
// minimum purchase requirement.
type MinPurchaseError struct {
	Code        string
	MinPurchase decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum purchase of %s", e.Code, e.MinPurchase.StringFixed(2))
}

// Coupon is a discount rule redeemable at checkout. Codes are stored
// uppercase and matched case-insensitively.
type Coupon struct {
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	// MaxDiscount caps percentage discounts; zero means uncapped. Ignored
	// for fixed coupons.
	MaxDiscount decimal.Decimal
	ExpiresAt   *time.Time
	Active      bool
	Uses        int
	CreatedAt   time.Time
}

// Discount is the outcome of quoting a coupon against an order subtotal.
type Discount struct {
	Code   string
	Amount decimal.Decimal
}

// Repository provides lookup and mutation of coupons. FindByCode matches
// active rows only and returns ErrInvalidCoupon when nothing matches;
// Create returns ErrCodeTaken on a duplicate code. Usage counting happens
// inside the order transaction, not here.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
}
