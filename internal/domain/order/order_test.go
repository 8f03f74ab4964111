package order

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_ForwardMovesAndSkips(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusProcessing},
		{StatusPending, StatusDelivered},
		{StatusConfirmed, StatusProcessing},
		{StatusConfirmed, StatusShipped},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusDelivered},
		{StatusShipped, StatusDelivered},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			o := &Order{Status: tc.from}
			err := o.Transition(tc.to, Actor{ID: "d1", Kind: ActorDistributor}, "", time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.to, o.Status)
		})
	}
}

func TestTransition_BackwardRejected(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusConfirmed, StatusPending},
		{StatusProcessing, StatusPending},
		{StatusProcessing, StatusConfirmed},
		{StatusShipped, StatusProcessing},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			o := &Order{Status: tc.from}
			err := o.Transition(tc.to, Actor{ID: "d1", Kind: ActorDistributor}, "", time.Now())

			var trErr *TransitionError
			require.ErrorAs(t, err, &trErr)
			assert.Equal(t, tc.from, trErr.From)
			assert.Equal(t, tc.to, trErr.To)
			assert.Equal(t, tc.from, o.Status, "status must not change on a rejected transition")
			assert.Empty(t, o.History)
		})
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for _, to := range []Status{StatusPending, StatusProcessing, StatusShipped, StatusCancelled} {
			o := &Order{Status: from}
			err := o.Transition(to, Actor{ID: "a1", Kind: ActorAdmin}, "", time.Now())

			var trErr *TransitionError
			require.ErrorAs(t, err, &trErr, "%s to %s must fail", from, to)
			assert.Contains(t, trErr.Error(), string(from))
		}
	}
}

func TestTransition_SameStatusRejected(t *testing.T) {
	o := &Order{Status: StatusProcessing}
	err := o.Transition(StatusProcessing, Actor{ID: "d1", Kind: ActorDistributor}, "", time.Now())

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
}

func TestTransition_CancelledReachableFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped} {
		o := &Order{Status: from}
		err := o.Transition(StatusCancelled, Actor{ID: "d1", Kind: ActorDistributor}, "out of stock", time.Now())
		require.NoError(t, err, "cancel from %s", from)
		assert.Equal(t, StatusCancelled, o.Status)
	}
}

func TestTransition_AppendsExactlyOneHistoryEntry(t *testing.T) {
	at := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)
	o := &Order{Status: StatusPending}

	err := o.Transition(StatusConfirmed, Actor{ID: "d1", Kind: ActorDistributor}, "stock reserved", at)
	require.NoError(t, err)

	require.Len(t, o.History, 1)
	entry := o.History[0]
	assert.Equal(t, StatusConfirmed, entry.Status)
	assert.Equal(t, "stock reserved", entry.Note)
	assert.Equal(t, "d1", entry.ActorID)
	assert.Equal(t, ActorDistributor, entry.ActorKind)
	assert.Equal(t, at, entry.At)
}

func TestTransition_DefaultNote(t *testing.T) {
	o := &Order{Status: StatusConfirmed}
	require.NoError(t, o.Transition(StatusShipped, Actor{ID: "d1", Kind: ActorDistributor}, "", time.Now()))
	require.Len(t, o.History, 1)
	assert.Equal(t, "status set to shipped", o.History[0].Note)
}

func TestCancel_RecordsReasonAndActor(t *testing.T) {
	at := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)
	o := &Order{Status: StatusConfirmed, PaymentStatus: PaymentPending}

	require.NoError(t, o.Cancel("site visit cancelled", Actor{ID: "u1", Kind: ActorUser}, at))

	assert.Equal(t, StatusCancelled, o.Status)
	require.NotNil(t, o.Cancellation)
	assert.Equal(t, "site visit cancelled", o.Cancellation.Reason)
	assert.Equal(t, "u1", o.Cancellation.ActorID)
	assert.Equal(t, ActorUser, o.Cancellation.ActorKind)
	require.Len(t, o.History, 1)
	assert.Equal(t, "site visit cancelled", o.History[0].Note)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestCancel_PaidOrderMarkedRefunded(t *testing.T) {
	o := &Order{Status: StatusConfirmed, PaymentMethod: PayOnline, PaymentStatus: PaymentPaid}
	require.NoError(t, o.Cancel("", Actor{ID: "u1", Kind: ActorUser}, time.Now()))
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
}

func TestCancellableWindow(t *testing.T) {
	open := []Status{StatusPending, StatusConfirmed, StatusProcessing}
	closed := []Status{StatusShipped, StatusDelivered, StatusCancelled}
	for _, st := range open {
		assert.True(t, (&Order{Status: st}).Cancellable(), "%s should be cancellable", st)
	}
	for _, st := range closed {
		assert.False(t, (&Order{Status: st}).Cancellable(), "%s should not be cancellable", st)
	}
}

func TestRecomputeTotal(t *testing.T) {
	o := &Order{
		Subtotal:       decimal.RequireFromString("800.00"),
		DeliveryCharge: decimal.RequireFromString("49.00"),
		Discount:       decimal.RequireFromString("50.00"),
	}
	o.RecomputeTotal()
	assert.True(t, decimal.RequireFromString("799.00").Equal(o.Total), "got %s", o.Total)
}

func TestRecomputeTotal_FlooredAtZero(t *testing.T) {
	o := &Order{
		Subtotal:       decimal.RequireFromString("100.00"),
		DeliveryCharge: decimal.Zero,
		Discount:       decimal.RequireFromString("150.00"),
	}
	o.RecomputeTotal()
	assert.True(t, o.Total.IsZero(), "got %s", o.Total)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("dispatched")
	var unkErr *UnknownStatusError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "dispatched", unkErr.Value)
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("ONLINE")
	require.NoError(t, err)
	assert.Equal(t, PayOnline, m)

	m, err = ParsePaymentMethod("cod")
	require.NoError(t, err)
	assert.Equal(t, PayOnDelivery, m)

	_, err = ParsePaymentMethod("cheque")
	var unkErr *UnknownPaymentMethodError
	require.ErrorAs(t, err, &unkErr)
}

func TestAddressValidate(t *testing.T) {
	addr := Address{
		FullName: "Rakesh Kumar",
		Phone:    "9876543210",
		Line1:    "14 MG Road",
		City:     "Pune",
		State:    "MH",
		Pincode:  "411001",
	}
	require.NoError(t, addr.Validate())

	addr.City = "  "
	var mfErr *MissingFieldError
	require.ErrorAs(t, addr.Validate(), &mfErr)
	assert.Equal(t, "address.city", mfErr.Field)
}

func TestItemSubtotal(t *testing.T) {
	item := Item{UnitPrice: decimal.RequireFromString("399.50"), Quantity: 4}
	assert.True(t, decimal.RequireFromString("1598.00").Equal(item.Subtotal()))
}

func TestNewNumber(t *testing.T) {
	at := time.Date(2025, 8, 14, 23, 59, 0, 0, time.UTC)
	n := NewNumber(at)

	assert.True(t, strings.HasPrefix(n, "BK-20250814-"), "got %s", n)
	assert.Len(t, n, len("BK-20250814-")+8)
	assert.NotEqual(t, n, NewNumber(at))
}
