package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/coupon"
	"github.com/buildkart/buildkart/internal/domain/distributor"
	"github.com/buildkart/buildkart/internal/domain/product"
)

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrEmptyItems        = errors.New("order must contain at least one item")
	ErrForbidden         = errors.New("not allowed for this order")
	ErrVersionConflict   = errors.New("order was modified concurrently, retry")
	ErrReasonRequired    = errors.New("a rejection reason is required")
	ErrAlreadyPaid       = errors.New("payment already captured")
	ErrPaymentClosed     = errors.New("payment is closed for this order")
	ErrNotOnlinePayment  = errors.New("order is not paid online")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a line references a delisted product.
type ProductUnavailableError struct {
	Name string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.Name)
}

// WrongDistributorError indicates a line references a product sold by a
// different distributor than the one the order is placed against.
type WrongDistributorError struct {
	Name string
}

func (e *WrongDistributorError) Error() string {
	return fmt.Sprintf("product %s is not sold by this distributor", e.Name)
}

// InsufficientStockError indicates a line wants more units than are on hand.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// DistributorUnavailableError indicates the chosen distributor cannot take
// orders.
type DistributorUnavailableError struct {
	ID string
}

func (e *DistributorUnavailableError) Error() string {
	return fmt.Sprintf("distributor %s is not accepting orders", e.ID)
}

// NotCancellableError indicates the customer cancellation window has closed.
type NotCancellableError struct {
	Status Status
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order in status %s can no longer be cancelled", e.Status)
}

// ApprovalDecidedError indicates the review verdict was already given.
type ApprovalDecidedError struct {
	Verdict ApprovalStatus
}

func (e *ApprovalDecidedError) Error() string {
	return fmt.Sprintf("order approval already %s", e.Verdict)
}

// Gateway creates payment intents with the payment provider and verifies
// the signatures the provider hands back to customers.
type Gateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, receipt string) (string, error)
	VerifyPaymentSignature(providerOrderID, paymentID, signature string) bool
}

// CouponQuoter prices a coupon code against a subtotal without consuming it.
type CouponQuoter interface {
	Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Discount, error)
}

// DeliveryPolicy computes the delivery charge: a flat fee, waived once the
// subtotal reaches FreeAbove (when FreeAbove is positive).
type DeliveryPolicy struct {
	Fee       decimal.Decimal
	FreeAbove decimal.Decimal
}

// Charge returns the delivery charge for the given subtotal.
func (p DeliveryPolicy) Charge(subtotal decimal.Decimal) decimal.Decimal {
	if p.FreeAbove.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeAbove) {
		return decimal.Zero
	}
	return p.Fee
}

// Line is one cart entry in a placement request. Prices always come from
// the catalog, never from the client.
type Line struct {
	ProductID string
	Quantity  int
}

// PlaceRequest holds the checkout input for placing an order.
type PlaceRequest struct {
	DistributorID string
	Lines         []Line
	Address       Address
	PaymentMethod PaymentMethod
	CouponCode    string
}

// Service coordinates the order lifecycle: placement, fulfilment status,
// distributor review, cancellation, and payment verdicts.
type Service struct {
	orders       Repository
	products     product.Repository
	distributors distributor.Repository
	coupons      CouponQuoter
	gateway      Gateway
	delivery     DeliveryPolicy
	now          func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	products product.Repository,
	distributors distributor.Repository,
	coupons CouponQuoter,
	gateway Gateway,
	delivery DeliveryPolicy,
) *Service {
	return &Service{
		orders:       orders,
		products:     products,
		distributors: distributors,
		coupons:      coupons,
		gateway:      gateway,
		delivery:     delivery,
		now:          time.Now,
	}
}

// Place validates the cart against the catalog, prices it, reserves a
// payment intent for online orders, and persists the order atomically with
// its stock decrement and coupon usage.
func (s *Service) Place(ctx context.Context, actor Actor, req PlaceRequest) (*Order, error) {
	if actor.Kind != ActorUser {
		return nil, ErrForbidden
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}
	if req.PaymentMethod != PayOnline && req.PaymentMethod != PayOnDelivery {
		return nil, &UnknownPaymentMethodError{Value: string(req.PaymentMethod)}
	}

	dist, err := s.distributors.GetByID(ctx, req.DistributorID)
	if err != nil {
		return nil, errors.Wrap(err, "get distributor")
	}
	if !dist.Active {
		return nil, &DistributorUnavailableError{ID: dist.ID}
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Build priced lines, checking availability and stock along the way.
	// Stock is checked again inside the create transaction; this pass gives
	// the customer an early answer without taking row locks.
	items := make([]Item, len(req.Lines))
	subtotal := decimal.Zero
	for i, line := range req.Lines {
		p, ok := productMap[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{Name: p.Name}
		}
		if p.DistributorID != req.DistributorID {
			return nil, &WrongDistributorError{Name: p.Name}
		}
		if p.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      p.Unit,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
		}
		subtotal = subtotal.Add(items[i].Subtotal())
	}
	subtotal = subtotal.Round(2)

	// Apply coupon discount when a code is provided.
	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		d, err := s.coupons.Quote(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount = d.Amount
		couponCode = d.Code
	}

	now := s.now()
	o := &Order{
		ID:             uuid.New().String(),
		Number:         NewNumber(now),
		UserID:         actor.ID,
		DistributorID:  req.DistributorID,
		Items:          items,
		Address:        req.Address,
		Subtotal:       subtotal,
		DeliveryCharge: s.delivery.Charge(subtotal),
		Discount:       discount,
		CouponCode:     couponCode,
		Status:         StatusPending,
		ApprovalStatus: ApprovalPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.RecomputeTotal()
	o.History = append(o.History, HistoryEntry{
		Status:    StatusPending,
		Note:      "order placed",
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		At:        now,
	})

	// Online orders reserve a payment intent first. If the gateway refuses,
	// nothing has been persisted and the customer can retry cleanly.
	if o.PaymentMethod == PayOnline {
		providerOrderID, err := s.gateway.CreateIntent(ctx, o.Total, o.Number)
		if err != nil {
			return nil, errors.Wrap(err, "create payment intent")
		}
		o.ProviderOrderID = providerOrderID
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Get returns one order if the actor may see it.
func (s *Service) Get(ctx context.Context, actor Actor, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canView(o, actor) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListForActor returns the orders visible to the actor: a customer sees
// their own orders, a distributor their order book.
func (s *Service) ListForActor(ctx context.Context, actor Actor) ([]Order, error) {
	switch actor.Kind {
	case ActorUser:
		return s.orders.ListByUser(ctx, actor.ID)
	case ActorDistributor:
		return s.orders.ListByDistributor(ctx, actor.ID)
	}
	return nil, ErrForbidden
}

// UpdateStatus moves an order along the fulfilment chain. Moving to
// cancelled returns the order's stock in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, number string, to Status, note string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canManage(o, actor) {
		return nil, ErrForbidden
	}

	now := s.now()
	if to == StatusCancelled {
		if err := o.Cancel(note, actor, now); err != nil {
			return nil, err
		}
		o.UpdatedAt = now
		if err := s.orders.CancelAndRestock(ctx, o); err != nil {
			return nil, err
		}
		return o, nil
	}

	if err := o.Transition(to, actor, note, now); err != nil {
		return nil, err
	}
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Approve records the distributor's acceptance of a fresh order. A pending
// order advances to confirmed through the regular transition rules; an
// optional delivery charge override reprices the order first.
func (s *Service) Approve(ctx context.Context, actor Actor, number string, deliveryOverride *decimal.Decimal) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canManage(o, actor) {
		return nil, ErrForbidden
	}
	if o.ApprovalStatus != ApprovalPending {
		return nil, &ApprovalDecidedError{Verdict: o.ApprovalStatus}
	}
	if o.Status == StatusCancelled {
		return nil, &TransitionError{From: o.Status, To: StatusConfirmed}
	}

	now := s.now()
	if deliveryOverride != nil {
		if deliveryOverride.IsNegative() {
			return nil, &MissingFieldError{Field: "a non-negative deliveryCharge"}
		}
		o.DeliveryCharge = deliveryOverride.Round(2)
		o.RecomputeTotal()
	}

	o.ApprovalStatus = ApprovalApproved
	o.Approval = &Approval{
		Verdict:   ApprovalApproved,
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		At:        now,
	}
	if o.Status == StatusPending {
		if err := o.Transition(StatusConfirmed, actor, "order approved", now); err != nil {
			return nil, err
		}
	}
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Reject records the distributor's refusal and cancels the order, returning
// its stock. A reason is required and lands in both the approval record and
// the cancellation record.
func (s *Service) Reject(ctx context.Context, actor Actor, number, reason string) (*Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canManage(o, actor) {
		return nil, ErrForbidden
	}
	if o.ApprovalStatus != ApprovalPending {
		return nil, &ApprovalDecidedError{Verdict: o.ApprovalStatus}
	}

	now := s.now()
	if err := o.Cancel(reason, actor, now); err != nil {
		return nil, err
	}
	o.ApprovalStatus = ApprovalRejected
	o.Approval = &Approval{
		Verdict:   ApprovalRejected,
		Reason:    reason,
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		At:        now,
	}
	o.UpdatedAt = now
	if err := s.orders.CancelAndRestock(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel is the customer-facing cancellation path, open until the order
// ships.
func (s *Service) Cancel(ctx context.Context, actor Actor, number, reason string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canActForBuyer(o, actor) {
		return nil, ErrForbidden
	}
	if !o.Cancellable() {
		return nil, &NotCancellableError{Status: o.Status}
	}

	now := s.now()
	if reason == "" {
		reason = "cancelled by customer"
	}
	if err := o.Cancel(reason, actor, now); err != nil {
		return nil, err
	}
	o.UpdatedAt = now
	if err := s.orders.CancelAndRestock(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ConfirmPayment verifies the signature the customer brings back from the
// payment flow. A good signature marks the order paid; a tampered one marks
// the payment failed and leaves the rest of the order untouched, so the
// customer may retry.
func (s *Service) ConfirmPayment(ctx context.Context, actor Actor, number, paymentID, signature string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canActForBuyer(o, actor) {
		return nil, ErrForbidden
	}
	if o.PaymentMethod != PayOnline {
		return nil, ErrNotOnlinePayment
	}
	if o.PaymentStatus == PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if o.Status == StatusCancelled || o.PaymentStatus == PaymentRefunded {
		return nil, ErrPaymentClosed
	}
	if o.ProviderOrderID == "" {
		return nil, errors.Errorf("order %s has no payment intent", number)
	}

	now := s.now()
	if !s.gateway.VerifyPaymentSignature(o.ProviderOrderID, paymentID, signature) {
		o.PaymentStatus = PaymentFailed
		o.UpdatedAt = now
		if err := s.orders.Update(ctx, o); err != nil {
			return nil, err
		}
		return nil, ErrSignatureMismatch
	}

	o.PaymentStatus = PaymentPaid
	o.ProviderPaymentID = paymentID
	o.ProviderSignature = signature
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaymentCaptured applies a gateway capture notification. It is
// idempotent, and a capture that already landed is never overwritten.
func (s *Service) MarkPaymentCaptured(ctx context.Context, providerOrderID, paymentID string) (*Order, error) {
	o, err := s.orders.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
		return o, nil
	}
	o.PaymentStatus = PaymentPaid
	o.ProviderPaymentID = paymentID
	o.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaymentFailed applies a gateway failure notification. A capture that
// already landed wins over a late failure event.
func (s *Service) MarkPaymentFailed(ctx context.Context, providerOrderID string) (*Order, error) {
	o, err := s.orders.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
		return o, nil
	}
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// canView reports whether the actor may read the order.
func canView(o *Order, actor Actor) bool {
	switch actor.Kind {
	case ActorAdmin:
		return true
	case ActorUser:
		return o.UserID == actor.ID
	case ActorDistributor:
		return o.DistributorID == actor.ID
	}
	return false
}

// canManage reports whether the actor may drive fulfilment and review: the
// owning distributor or an admin.
func canManage(o *Order, actor Actor) bool {
	switch actor.Kind {
	case ActorAdmin:
		return true
	case ActorDistributor:
		return o.DistributorID == actor.ID
	}
	return false
}

// canActForBuyer reports whether the actor may use the buyer-side paths
// (cancellation, payment confirmation): the owning user or an admin.
func canActForBuyer(o *Order, actor Actor) bool {
	switch actor.Kind {
	case ActorAdmin:
		return true
	case ActorUser:
		return o.UserID == actor.ID
	}
	return false
}
