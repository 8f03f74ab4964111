package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order. Forward movement along the
// chain may skip intermediate states; moving backwards is never allowed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// statusRank orders the forward fulfilment chain. Cancelled sits outside
// the chain and is reachable from any non-terminal status.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// ParseStatus converts user input to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", &UnknownStatusError{Value: s}
}

// Terminal reports whether no further status changes are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// canTransition reports whether an order may move between two statuses:
// strictly forward along the fulfilment chain, or to cancelled from any
// non-terminal status.
func canTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// TransitionError reports a status change the state machine forbids.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is %s and can no longer change status", e.From)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// UnknownStatusError reports an unrecognized status value in input.
type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Value)
}

// ApprovalStatus is the distributor's review verdict. It moves exactly once,
// from pending to approved or rejected, independently of fulfilment status.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	PayOnline     PaymentMethod = "online"
	PayOnDelivery PaymentMethod = "cod"
)

// ParsePaymentMethod converts user input to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PayOnline, PayOnDelivery:
		return m, nil
	}
	return "", &UnknownPaymentMethodError{Value: s}
}

// UnknownPaymentMethodError reports an unrecognized payment method in input.
type UnknownPaymentMethodError struct {
	Value string
}

func (e *UnknownPaymentMethodError) Error() string {
	return fmt.Sprintf("unknown payment method %q", e.Value)
}

// PaymentStatus tracks money state independently of fulfilment. Cash on
// delivery orders stay pending; online orders move via signature
// verification or gateway webhooks.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ActorKind identifies which side of the marketplace performed an action.
type ActorKind string

const (
	ActorUser        ActorKind = "user"
	ActorDistributor ActorKind = "distributor"
	ActorAdmin       ActorKind = "admin"
)

// Actor is whoever performs an order operation.
type Actor struct {
	ID   string
	Kind ActorKind
}

// Item is an order line. Name, Unit, and UnitPrice are captured from the
// catalog at placement so later catalog edits do not rewrite order history.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice times Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is the delivery destination for an order.
type Address struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

// MissingFieldError reports a required field left empty in input.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Validate checks that the required address fields are present.
func (a Address) Validate() error {
	required := []struct{ name, value string }{
		{"address.fullName", a.FullName},
		{"address.phone", a.Phone},
		{"address.line1", a.Line1},
		{"address.city", a.City},
		{"address.state", a.State},
		{"address.pincode", a.Pincode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}

// HistoryEntry records one accepted status change.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actorId"`
	ActorKind ActorKind `json:"actorKind"`
	At        time.Time `json:"at"`
}

// Approval records who decided the distributor review and when.
type Approval struct {
	Verdict   ApprovalStatus `json:"verdict"`
	Reason    string         `json:"reason,omitempty"`
	ActorID   string         `json:"actorId"`
	ActorKind ActorKind      `json:"actorKind"`
	At        time.Time      `json:"at"`
}

// Cancellation records why and by whom an order was cancelled.
type Cancellation struct {
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actorId"`
	ActorKind ActorKind `json:"actorKind"`
	At        time.Time `json:"at"`
}

// Order is the aggregate for one purchase from a single distributor.
// Fulfilment status, the approval verdict, and payment state evolve on
// independent axes; Version guards concurrent writers.
type Order struct {
	ID            string
	Number        string
	UserID        string
	DistributorID string
	Items         []Item
	Address       Address

	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string

	Status         Status
	ApprovalStatus ApprovalStatus
	Approval       *Approval
	History        []HistoryEntry
	Cancellation   *Cancellation

	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	ProviderOrderID   string
	ProviderPaymentID string
	ProviderSignature string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotal derives Total from the price components, floored at zero
// and rounded to 2 decimal places.
func (o *Order) RecomputeTotal() {
	total := o.Subtotal.Add(o.DeliveryCharge).Sub(o.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total.Round(2)
}

// Transition moves the order to a new fulfilment status, appending exactly
// one history entry, or fails with a TransitionError when the state machine
// forbids the move.
func (o *Order) Transition(to Status, actor Actor, note string, at time.Time) error {
	if !canTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	if note == "" {
		note = fmt.Sprintf("status set to %s", to)
	}
	o.Status = to
	o.History = append(o.History, HistoryEntry{
		Status:    to,
		Note:      note,
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		At:        at,
	})
	return nil
}

// Cancellable reports whether the customer cancellation window is still
// open. Distributors and admins cancel through Transition instead and are
// bound only by the state machine.
func (o *Order) Cancellable() bool {
	switch o.Status {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

// Cancel transitions the order to cancelled and records the reason. A paid
// order is marked refunded; moving the money back is handled out of band.
func (o *Order) Cancel(reason string, actor Actor, at time.Time) error {
	if reason == "" {
		reason = "order cancelled"
	}
	if err := o.Transition(StatusCancelled, actor, reason, at); err != nil {
		return err
	}
	o.Cancellation = &Cancellation{
		Reason:    reason,
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		At:        at,
	}
	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	return nil
}

// Repository defines persistence for orders. Create and CancelAndRestock
// are transactional: stock and coupon usage move in the same transaction as
// the order row. Update and CancelAndRestock check Version and return
// ErrVersionConflict when the row moved underneath the caller.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	CancelAndRestock(ctx context.Context, o *Order) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListByDistributor(ctx context.Context, distributorID string) ([]Order, error)
}
