package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, type, value, min_purchase, max_discount, expires_at, active, uses, created_at
		FROM coupons WHERE code = $1 AND active = TRUE`

	createCouponSQL = `INSERT INTO coupons (code, type, value, min_purchase, max_discount, expires_at, active, uses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listCouponsSQL = `SELECT code, type, value, min_purchase, max_discount, expires_at, active, uses, created_at
		FROM coupons ORDER BY code`
)

// SQLSTATE for unique constraint violations.
const uniqueViolationCode = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its normalized code. Returns
// coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Create inserts a new coupon. Returns coupon.ErrCodeTaken when a coupon
// with the same code already exists.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, string(c.Type), c.Value, c.MinPurchase, c.MaxDiscount,
		c.ExpiresAt, c.Active, int32(c.Uses), c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// List returns all coupons ordered by code, including inactive ones.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		couponType  string
		value       decimal.Decimal
		minPurchase decimal.Decimal
		maxDiscount decimal.Decimal
		expiresAt   *time.Time
		uses        int32
	)
	err := row.Scan(
		&c.Code, &couponType, &value, &minPurchase, &maxDiscount,
		&expiresAt, &c.Active, &uses, &c.CreatedAt,
	)
	c.Type = coupon.DiscountType(couponType)
	c.Value = value
	c.MinPurchase = minPurchase
	c.MaxDiscount = maxDiscount
	c.ExpiresAt = expiresAt
	c.Uses = int(uses)
	return c, err
}
