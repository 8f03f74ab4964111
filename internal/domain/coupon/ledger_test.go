package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock repository ---

type mockRepo struct {
	byCode  map[string]*Coupon
	created *Coupon
	listErr error
}

func newMockRepo(coupons ...*Coupon) *mockRepo {
	m := &mockRepo{byCode: make(map[string]*Coupon)}
	for _, c := range coupons {
		m.byCode[c.Code] = c
	}
	return m
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.byCode[code]
	if !ok || !c.Active {
		return nil, ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockRepo) Create(_ context.Context, c *Coupon) error {
	if _, ok := m.byCode[c.Code]; ok {
		return ErrCodeTaken
	}
	m.byCode[c.Code] = c
	m.created = c
	return nil
}

func (m *mockRepo) List(_ context.Context) ([]Coupon, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Coupon, 0, len(m.byCode))
	for _, c := range m.byCode {
		out = append(out, *c)
	}
	return out, nil
}

func newTestLedger(coupons ...*Coupon) (*Ledger, *mockRepo) {
	repo := newMockRepo(coupons...)
	l := NewLedger(repo)
	l.now = func() time.Time { return time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC) }
	return l, repo
}

func expiring(t time.Time) *time.Time { return &t }

// --- Quote ---

func TestQuote_PercentageWithCap(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "BUILD10", Type: DiscountPercentage,
		Value: d("10"), MaxDiscount: d("50"), Active: true,
	})

	disc, err := l.Quote(context.Background(), "BUILD10", d("800.00"))
	require.NoError(t, err)
	assert.Equal(t, "BUILD10", disc.Code)
	assert.True(t, d("50.00").Equal(disc.Amount), "got %s", disc.Amount)
}

func TestQuote_CodeIsCaseInsensitive(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "MONSOON15", Type: DiscountPercentage, Value: d("15"), Active: true,
	})

	disc, err := l.Quote(context.Background(), "  monsoon15 ", d("1000.00"))
	require.NoError(t, err)
	assert.Equal(t, "MONSOON15", disc.Code)
}

func TestQuote_UnknownCode(t *testing.T) {
	l, _ := newTestLedger()
	_, err := l.Quote(context.Background(), "NOPE", d("1000.00"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestQuote_ExpiredCoupon(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "OLD", Type: DiscountFixed, Value: d("100"), MinPurchase: d("100"), Active: true,
		ExpiresAt: expiring(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})

	_, err := l.Quote(context.Background(), "OLD", d("1000.00"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestQuote_FutureExpiryStillValid(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "FRESH", Type: DiscountFixed, Value: d("100"), MinPurchase: d("100"), Active: true,
		ExpiresAt: expiring(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})

	disc, err := l.Quote(context.Background(), "FRESH", d("1000.00"))
	require.NoError(t, err)
	assert.True(t, d("100.00").Equal(disc.Amount))
}

func TestQuote_MinPurchaseNotMet(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "BULK500", Type: DiscountFixed, Value: d("500"), MinPurchase: d("5000"), Active: true,
	})

	_, err := l.Quote(context.Background(), "BULK500", d("4999.99"))

	var mpErr *MinPurchaseError
	require.ErrorAs(t, err, &mpErr)
	assert.Equal(t, "BULK500", mpErr.Code)
	assert.True(t, d("5000").Equal(mpErr.MinPurchase))
}

func TestQuote_MinPurchaseBoundary(t *testing.T) {
	l, _ := newTestLedger(&Coupon{
		Code: "BULK500", Type: DiscountFixed, Value: d("500"), MinPurchase: d("5000"), Active: true,
	})

	disc, err := l.Quote(context.Background(), "BULK500", d("5000.00"))
	require.NoError(t, err)
	assert.True(t, d("500.00").Equal(disc.Amount))
}

func TestQuote_InactiveCoupon(t *testing.T) {
	l, _ := newTestLedger(&Coupon{Code: "PAUSED", Type: DiscountFixed, Value: d("50"), MinPurchase: d("50")})
	_, err := l.Quote(context.Background(), "PAUSED", d("1000.00"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

// --- Create ---

func TestCreate_NormalizesCode(t *testing.T) {
	l, repo := newTestLedger()

	err := l.Create(context.Background(), &Coupon{
		Code: " build10 ", Type: DiscountPercentage, Value: d("10"), MaxDiscount: d("50"), Active: true,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, "BUILD10", repo.created.Code)
}

func TestCreate_DuplicateCode(t *testing.T) {
	l, _ := newTestLedger(&Coupon{Code: "BUILD10", Type: DiscountPercentage, Value: d("10"), Active: true})

	err := l.Create(context.Background(), &Coupon{
		Code: "build10", Type: DiscountPercentage, Value: d("20"), Active: true,
	})
	require.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreate_RuleValidation(t *testing.T) {
	cases := []struct {
		name   string
		coupon Coupon
		reason string
	}{
		{"empty code", Coupon{Type: DiscountPercentage, Value: d("10")}, "code is required"},
		{"zero value", Coupon{Code: "X", Type: DiscountPercentage, Value: d("0")}, "value must be positive"},
		{"negative value", Coupon{Code: "X", Type: DiscountFixed, Value: d("-5")}, "value must be positive"},
		{"over 100 percent", Coupon{Code: "X", Type: DiscountPercentage, Value: d("120")}, "percentage cannot exceed 100"},
		{"negative min purchase", Coupon{Code: "X", Type: DiscountFixed, Value: d("10"), MinPurchase: d("-1")}, "minimum purchase cannot be negative"},
		{"fixed without covering floor", Coupon{Code: "X", Type: DiscountFixed, Value: d("500"), MinPurchase: d("100")}, "minimum purchase must cover the fixed value"},
		{"unknown type", Coupon{Code: "X", Type: DiscountType("bogof"), Value: d("1")}, `unknown type "bogof"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLedger()
			err := l.Create(context.Background(), &tc.coupon)

			var irErr *InvalidRuleError
			require.ErrorAs(t, err, &irErr)
			assert.Equal(t, tc.reason, irErr.Reason)
		})
	}
}

func TestCreate_FixedCoveredByMinPurchase(t *testing.T) {
	l, _ := newTestLedger()
	err := l.Create(context.Background(), &Coupon{
		Code: "BULK500", Type: DiscountFixed, Value: d("500"), MinPurchase: d("500"), Active: true,
	})
	require.NoError(t, err)
}

func TestCreate_FullPercentageAllowed(t *testing.T) {
	l, _ := newTestLedger()
	err := l.Create(context.Background(), &Coupon{
		Code: "FREEBIE", Type: DiscountPercentage, Value: d("100"), MaxDiscount: d("200"), Active: true,
	})
	require.NoError(t, err)
}

func TestList_PassesThrough(t *testing.T) {
	l, _ := newTestLedger(
		&Coupon{Code: "A", Type: DiscountFixed, Value: d("10"), MinPurchase: d("10"), Active: true},
		&Coupon{Code: "B", Type: DiscountPercentage, Value: d("5")},
	)

	all, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
