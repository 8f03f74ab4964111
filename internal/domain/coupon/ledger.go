package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Normalize canonicalizes a coupon code for storage and lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InvalidRuleError reports a coupon definition that cannot be stored.
type InvalidRuleError struct {
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return "invalid coupon rule: " + e.Reason
}

// Ledger is the domain service for coupons: it quotes discounts at checkout
// and manages the coupon book for admins.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Quote computes the discount the given code yields against an order
// subtotal. Quote never mutates the coupon; usage is counted when the order
// it belongs to is persisted.
func (l *Ledger) Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	c, err := l.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ExpiresAt != nil && l.now().After(*c.ExpiresAt) {
		return nil, ErrInvalidCoupon
	}
	if subtotal.LessThan(c.MinPurchase) {
		return nil, &MinPurchaseError{Code: c.Code, MinPurchase: c.MinPurchase}
	}

	return &Discount{Code: c.Code, Amount: compute(c, subtotal)}, nil
}

// Create validates and stores a new coupon. Codes are uppercased before
// storage. Fixed coupons must set MinPurchase at or above their value so the
// discount can never exceed the subtotal it applies to.
func (l *Ledger) Create(ctx context.Context, c *Coupon) error {
	c.Code = Normalize(c.Code)
	if err := validateRule(c); err != nil {
		return err
	}
	c.CreatedAt = l.now()
	if err := l.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "store coupon")
	}
	return nil
}

// List returns every coupon, active or not.
func (l *Ledger) List(ctx context.Context) ([]Coupon, error) {
	return l.repo.List(ctx)
}

func validateRule(c *Coupon) error {
	if c.Code == "" {
		return &InvalidRuleError{Reason: "code is required"}
	}
	if !c.Value.IsPositive() {
		return &InvalidRuleError{Reason: "value must be positive"}
	}
	if c.MinPurchase.IsNegative() {
		return &InvalidRuleError{Reason: "minimum purchase cannot be negative"}
	}
	switch c.Type {
	case DiscountPercentage:
		if c.Value.GreaterThan(hundred) {
			return &InvalidRuleError{Reason: "percentage cannot exceed 100"}
		}
		if c.MaxDiscount.IsNegative() {
			return &InvalidRuleError{Reason: "discount cap cannot be negative"}
		}
	case DiscountFixed:
		if c.MinPurchase.LessThan(c.Value) {
			return &InvalidRuleError{Reason: "minimum purchase must cover the fixed value"}
		}
	default:
		return &InvalidRuleError{Reason: fmt.Sprintf("unknown type %q", c.Type)}
	}
	return nil
}
