package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, distributor_id, items, shipping_address,
	subtotal, delivery_charge, discount, total, coupon_code,
	status, approval_status, approval, status_history, cancellation,
	payment_method, payment_status, provider_order_id, provider_payment_id, provider_signature,
	version, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	getOrderByProviderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE provider_order_id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersByDistributorSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE distributor_id = $1 ORDER BY created_at DESC`

	// updateOrderSQL bumps the row version and matches the version the caller
	// read, so two concurrent writers cannot both win.
	updateOrderSQL = `UPDATE orders SET
		delivery_charge = $2, total = $3,
		status = $4, approval_status = $5, approval = $6,
		status_history = $7, cancellation = $8,
		payment_status = $9, provider_payment_id = $10, provider_signature = $11,
		version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $13`

	lockProductStockSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1`

	restockProductSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1 WHERE code = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items,
// address, history, and the approval and cancellation records live in JSONB
// columns; money columns are NUMERIC.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order together with its stock decrement and coupon
// usage in one transaction. Each product row is locked before its stock is
// checked, so concurrent checkouts cannot oversell.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = r.withTx(ctx, func(tx pgx.Tx) error {
		for _, item := range o.Items {
			if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.UserID, o.DistributorID, docs.items, docs.address,
			o.Subtotal, o.DeliveryCharge, o.Discount, o.Total, o.CouponCode,
			string(o.Status), string(o.ApprovalStatus), docs.approval, docs.history, docs.cancellation,
			string(o.PaymentMethod), string(o.PaymentStatus), o.ProviderOrderID, o.ProviderPaymentID, o.ProviderSignature,
			int32(1), o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}

		if o.CouponCode != "" {
			if _, err := tx.Exec(ctx, incrementCouponUsesSQL, o.CouponCode); err != nil {
				return fmt.Errorf("incrementing uses for coupon %q: %w", o.CouponCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.Version = 1
	return nil
}

// GetByNumber returns one order by its customer-facing number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

// GetByProviderOrderID returns one order by the payment intent the gateway
// issued for it.
func (r *OrderRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByProviderSQL, providerOrderID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// Update writes the mutable order fields, guarded by the version the caller
// read. Returns order.ErrVersionConflict when the row moved underneath the
// caller; on success the in-memory version is bumped to match the row.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL, updateOrderArgs(o, docs)...)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrVersionConflict
	}

	o.Version++
	return nil
}

// CancelAndRestock writes a cancelled order and returns its stock in one
// transaction. The order row is version-guarded like Update.
func (r *OrderRepository) CancelAndRestock(ctx context.Context, o *order.Order) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderSQL, updateOrderArgs(o, docs)...)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", o.Number, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrVersionConflict
		}

		for _, item := range o.Items {
			if _, err := tx.Exec(ctx, restockProductSQL, item.ProductID, int32(item.Quantity)); err != nil {
				return fmt.Errorf("restocking product %q: %w", item.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.Version++
	return nil
}

// ListByUser returns a customer's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByDistributor returns a distributor's order book, newest first.
func (r *OrderRepository) ListByDistributor(ctx context.Context, distributorID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByDistributorSQL, distributorID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for distributor %q: %w", distributorID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// withTx runs fn inside a transaction, rolling back on error and committing
// on success.
func (r *OrderRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// reserveStock locks one product row, checks that enough stock is on hand,
// and decrements it.
func reserveStock(ctx context.Context, tx pgx.Tx, productID string, quantity int) error {
	var stock int32
	err := tx.QueryRow(ctx, lockProductStockSQL, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &order.ProductNotFoundError{ProductID: productID}
		}
		return fmt.Errorf("locking product %q: %w", productID, err)
	}

	if int(stock) < quantity {
		return &order.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: int(stock),
		}
	}

	if _, err := tx.Exec(ctx, decrementStockSQL, productID, int32(quantity)); err != nil {
		return fmt.Errorf("decrementing stock for product %q: %w", productID, err)
	}
	return nil
}

// orderDocs holds the JSONB document columns of an order row.
type orderDocs struct {
	items        []byte
	address      []byte
	approval     []byte
	history      []byte
	cancellation []byte
}

func marshalOrderDocs(o *order.Order) (*orderDocs, error) {
	var (
		d   orderDocs
		err error
	)
	if d.items, err = json.Marshal(o.Items); err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if d.address, err = json.Marshal(o.Address); err != nil {
		return nil, fmt.Errorf("marshaling order address: %w", err)
	}

	history := o.History
	if history == nil {
		history = []order.HistoryEntry{}
	}
	if d.history, err = json.Marshal(history); err != nil {
		return nil, fmt.Errorf("marshaling order history: %w", err)
	}

	// Nil pointers stay nil so the columns are written as NULL.
	if o.Approval != nil {
		if d.approval, err = json.Marshal(o.Approval); err != nil {
			return nil, fmt.Errorf("marshaling order approval: %w", err)
		}
	}
	if o.Cancellation != nil {
		if d.cancellation, err = json.Marshal(o.Cancellation); err != nil {
			return nil, fmt.Errorf("marshaling order cancellation: %w", err)
		}
	}
	return &d, nil
}

func updateOrderArgs(o *order.Order, docs *orderDocs) []any {
	return []any{
		o.ID, o.DeliveryCharge, o.Total,
		string(o.Status), string(o.ApprovalStatus), docs.approval,
		docs.history, docs.cancellation,
		string(o.PaymentStatus), o.ProviderPaymentID, o.ProviderSignature,
		o.UpdatedAt, int32(o.Version),
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                order.Order
		itemsJSON        []byte
		addressJSON      []byte
		subtotal         decimal.Decimal
		delivery         decimal.Decimal
		discount         decimal.Decimal
		total            decimal.Decimal
		status           string
		approvalStatus   string
		approvalJSON     []byte
		historyJSON      []byte
		cancellationJSON []byte
		method           string
		paymentStatus    string
		version          int32
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.DistributorID, &itemsJSON, &addressJSON,
		&subtotal, &delivery, &discount, &total, &o.CouponCode,
		&status, &approvalStatus, &approvalJSON, &historyJSON, &cancellationJSON,
		&method, &paymentStatus, &o.ProviderOrderID, &o.ProviderPaymentID, &o.ProviderSignature,
		&version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Subtotal = subtotal
	o.DeliveryCharge = delivery
	o.Discount = discount
	o.Total = total
	o.Status = order.Status(status)
	o.ApprovalStatus = order.ApprovalStatus(approvalStatus)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Version = int(version)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return o, fmt.Errorf("unmarshaling order address: %w", err)
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &o.History); err != nil {
			return o, fmt.Errorf("unmarshaling order history: %w", err)
		}
	}
	if len(approvalJSON) > 0 {
		if err := json.Unmarshal(approvalJSON, &o.Approval); err != nil {
			return o, fmt.Errorf("unmarshaling order approval: %w", err)
		}
	}
	if len(cancellationJSON) > 0 {
		if err := json.Unmarshal(cancellationJSON, &o.Cancellation); err != nil {
			return o, fmt.Errorf("unmarshaling order cancellation: %w", err)
		}
	}
	return o, nil
}
