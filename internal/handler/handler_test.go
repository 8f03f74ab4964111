package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/buildkart/buildkart/internal/domain/coupon"
	"github.com/buildkart/buildkart/internal/domain/distributor"
	"github.com/buildkart/buildkart/internal/domain/identity"
	"github.com/buildkart/buildkart/internal/domain/order"
	"github.com/buildkart/buildkart/internal/domain/product"
	"github.com/buildkart/buildkart/internal/payment"
)

const (
	testPepper        = "unit-test-pepper"
	testWebhookSecret = "whsec-unit-test"

	userKey  = "key-user-asha"
	user2Key = "key-user-vikram"
	distKey  = "key-dist-mumbai"
	adminKey = "key-admin-root"
)

// --- In-memory fakes ---

type memProductRepo struct {
	products map[string]product.Product
}

var _ product.Repository = (*memProductRepo)(nil)

func (m *memProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProductRepo) take(id string, qty int) error {
	p, ok := m.products[id]
	if !ok {
		return &order.ProductNotFoundError{ProductID: id}
	}
	if p.Stock < qty {
		return &order.InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	m.products[id] = p
	return nil
}

func (m *memProductRepo) restock(id string, qty int) {
	if p, ok := m.products[id]; ok {
		p.Stock += qty
		m.products[id] = p
	}
}

func (m *memProductRepo) stockOf(id string) int {
	return m.products[id].Stock
}

type memDistributorRepo struct {
	distributors map[string]distributor.Distributor
}

var _ distributor.Repository = (*memDistributorRepo)(nil)

func (m *memDistributorRepo) GetByID(_ context.Context, id string) (*distributor.Distributor, error) {
	d, ok := m.distributors[id]
	if !ok {
		return nil, distributor.ErrNotFound
	}
	return &d, nil
}

type memCouponRepo struct {
	coupons map[string]*coupon.Coupon
	order   []string
}

var _ coupon.Repository = (*memCouponRepo)(nil)

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok || !c.Active {
		return nil, coupon.ErrInvalidCoupon
	}
	cp := *c
	return &cp, nil
}

func (m *memCouponRepo) Create(_ context.Context, c *coupon.Coupon) error {
	if _, ok := m.coupons[c.Code]; ok {
		return coupon.ErrCodeTaken
	}
	cp := *c
	m.coupons[c.Code] = &cp
	m.order = append(m.order, c.Code)
	return nil
}

func (m *memCouponRepo) List(_ context.Context) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0, len(m.order))
	for _, code := range m.order {
		out = append(out, *m.coupons[code])
	}
	return out, nil
}

// memOrderRepo mimics the transactional order store: creation takes stock,
// updates are version-checked, cancellation restocks.
type memOrderRepo struct {
	byNumber  map[string]*order.Order
	seq       []string
	products  *memProductRepo
	createErr error
}

var _ order.Repository = (*memOrderRepo)(nil)

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	c.History = append([]order.HistoryEntry(nil), o.History...)
	if o.Approval != nil {
		a := *o.Approval
		c.Approval = &a
	}
	if o.Cancellation != nil {
		x := *o.Cancellation
		c.Cancellation = &x
	}
	return &c
}

func (m *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, it := range o.Items {
		if err := m.products.take(it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	o.Version = 1
	m.byNumber[o.Number] = cloneOrder(o)
	m.seq = append(m.seq, o.Number)
	return nil
}

func (m *memOrderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	stored, ok := m.byNumber[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(stored), nil
}

func (m *memOrderRepo) GetByProviderOrderID(_ context.Context, providerOrderID string) (*order.Order, error) {
	for _, number := range m.seq {
		stored := m.byNumber[number]
		if stored.ProviderOrderID != "" && stored.ProviderOrderID == providerOrderID {
			return cloneOrder(stored), nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrderRepo) Update(_ context.Context, o *order.Order) error {
	stored, ok := m.byNumber[o.Number]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Version != o.Version {
		return order.ErrVersionConflict
	}
	c := cloneOrder(o)
	c.Version = o.Version + 1
	m.byNumber[o.Number] = c
	o.Version++
	return nil
}

func (m *memOrderRepo) CancelAndRestock(ctx context.Context, o *order.Order) error {
	if err := m.Update(ctx, o); err != nil {
		return err
	}
	for _, it := range o.Items {
		m.products.restock(it.ProductID, it.Quantity)
	}
	return nil
}

func (m *memOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, number := range m.seq {
		if stored := m.byNumber[number]; stored.UserID == userID {
			out = append(out, *cloneOrder(stored))
		}
	}
	return out, nil
}

func (m *memOrderRepo) ListByDistributor(_ context.Context, distributorID string) ([]order.Order, error) {
	var out []order.Order
	for _, number := range m.seq {
		if stored := m.byNumber[number]; stored.DistributorID == distributorID {
			out = append(out, *cloneOrder(stored))
		}
	}
	return out, nil
}

type memKeyRepo struct {
	byHash map[string]*identity.Key
}

var _ identity.Repository = (*memKeyRepo)(nil)

func (m *memKeyRepo) FindByHash(_ context.Context, hash string) (*identity.Key, error) {
	k, ok := m.byHash[hash]
	if !ok {
		return nil, identity.ErrKeyNotFound
	}
	return k, nil
}

type fakeGateway struct {
	intents   []string
	intentErr error
}

var _ order.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) CreateIntent(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
	if g.intentErr != nil {
		return "", g.intentErr
	}
	id := fmt.Sprintf("pay_test_%d", len(g.intents)+1)
	g.intents = append(g.intents, id)
	return id, nil
}

func (g *fakeGateway) VerifyPaymentSignature(providerOrderID, paymentID, signature string) bool {
	return signature == testPaymentSignature(providerOrderID, paymentID)
}

// testPaymentSignature is the signature the fake gateway accepts.
func testPaymentSignature(providerOrderID, paymentID string) string {
	return "sig:" + providerOrderID + ":" + paymentID
}

type memDeduper struct {
	seen map[string]bool
	err  error
}

var _ payment.Deduper = (*memDeduper)(nil)

func (d *memDeduper) FirstDelivery(_ context.Context, eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

// --- Environment ---

type testEnv struct {
	router       http.Handler
	orders       *memOrderRepo
	products     *memProductRepo
	distributors *memDistributorRepo
	coupons      *memCouponRepo
	gateway      *fakeGateway
	dedupe       *memDeduper
}

func newTestProduct(id, distributorID, name string, price decimal.Decimal, stock int, active bool) product.Product {
	return product.Product{
		ID:            id,
		DistributorID: distributorID,
		Name:          name,
		Category:      "cement",
		Unit:          "bag",
		Price:         price,
		Stock:         stock,
		Active:        active,
		Image:         "catalog/" + id + ".jpg",
	}
}

func newTestKey(id string, role identity.Role, subjectID, raw string) (string, *identity.Key) {
	hash := identity.HashKey([]byte(testPepper), raw)
	return hash, &identity.Key{
		ID:        id,
		KeyHash:   hash,
		Name:      id,
		Role:      role,
		SubjectID: subjectID,
		Active:    true,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := &memProductRepo{products: map[string]product.Product{
		"p-cement":   newTestProduct("p-cement", "dist-1", "UltraTech PPC Cement 50kg", decimal.RequireFromString("415"), 100, true),
		"p-steel":    newTestProduct("p-steel", "dist-1", "Tata Tiscon TMT Bar 12mm", decimal.RequireFromString("725.50"), 10, true),
		"p-delisted": newTestProduct("p-delisted", "dist-1", "Discontinued Primer 10L", decimal.RequireFromString("900"), 5, false),
		"p-foreign":  newTestProduct("p-foreign", "dist-2", "River Sand Washed", decimal.RequireFromString("68"), 500, true),
	}}

	distributors := &memDistributorRepo{distributors: map[string]distributor.Distributor{
		"dist-1":   {ID: "dist-1", Name: "Sharma Building Supplies", City: "Mumbai", State: "Maharashtra", Active: true},
		"dist-2":   {ID: "dist-2", Name: "Nagarjuna Hardware", City: "Bengaluru", State: "Karnataka", Active: true},
		"dist-off": {ID: "dist-off", Name: "Closed Depot", City: "Pune", State: "Maharashtra", Active: false},
	}}

	coupons := &memCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE10": {
			Code: "SAVE10", Type: coupon.DiscountPercentage,
			Value:       decimal.NewFromInt(10),
			MaxDiscount: decimal.NewFromInt(100),
			Active:      true,
		},
		"FLAT50": {
			Code: "FLAT50", Type: coupon.DiscountFixed,
			Value:       decimal.NewFromInt(50),
			MinPurchase: decimal.NewFromInt(500),
			Active:      true,
		},
	}, order: []string{"SAVE10", "FLAT50"}}

	keys := &memKeyRepo{byHash: map[string]*identity.Key{}}
	for _, k := range []struct {
		id      string
		role    identity.Role
		subject string
		raw     string
	}{
		{"key-1", identity.RoleUser, "user-1", userKey},
		{"key-2", identity.RoleUser, "user-2", user2Key},
		{"key-3", identity.RoleDistributor, "dist-1", distKey},
		{"key-4", identity.RoleAdmin, "", adminKey},
	} {
		hash, key := newTestKey(k.id, k.role, k.subject, k.raw)
		keys.byHash[hash] = key
	}

	orders := &memOrderRepo{byNumber: map[string]*order.Order{}, products: products}
	gateway := &fakeGateway{}
	dedupe := &memDeduper{seen: map[string]bool{}}

	ledger := coupon.NewLedger(coupons)
	svc := order.NewService(orders, products, distributors, ledger, gateway, order.DeliveryPolicy{
		Fee:       decimal.NewFromInt(49),
		FreeAbove: decimal.NewFromInt(999),
	})

	verifier := payment.NewClient(payment.Config{WebhookSecret: testWebhookSecret})
	h := NewHandler(HandlerConfig{ImageBaseURL: "https://cdn.buildkart.example/"}, svc, products, ledger, verifier, dedupe)
	sec := NewSecurity(keys, []byte(testPepper))

	return &testEnv{
		router:       NewRouter(h, sec),
		orders:       orders,
		products:     products,
		distributors: distributors,
		coupons:      coupons,
		gateway:      gateway,
		dedupe:       dedupe,
	}
}

// --- Request helpers ---

func (e *testEnv) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	decodeJSON(t, w, &resp)
	return resp
}

func testAddress() map[string]any {
	return map[string]any{
		"fullName": "Asha Rao",
		"phone":    "9876543210",
		"line1":    "12 MG Road",
		"city":     "Bengaluru",
		"state":    "Karnataka",
		"pincode":  "560001",
	}
}

func line(productID string, quantity int) map[string]any {
	return map[string]any{"productId": productID, "quantity": quantity}
}

func cart(paymentMethod string, items ...map[string]any) map[string]any {
	return map[string]any{
		"distributorId": "dist-1",
		"items":         items,
		"address":       testAddress(),
		"paymentMethod": paymentMethod,
	}
}

func (e *testEnv) placeOrder(t *testing.T, apiKey string, body map[string]any) orderResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/orders", apiKey, body)
	require.Equal(t, http.StatusCreated, w.Code, "place order: %s", w.Body.String())
	var resp orderResponse
	decodeJSON(t, w, &resp)
	return resp
}
