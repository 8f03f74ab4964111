package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func previewBody(code string, items ...map[string]any) map[string]any {
	return map[string]any{"code": code, "items": items}
}

func TestCreateCoupon(t *testing.T) {
	t.Run("creates and uppercases the code", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/api/coupons", adminKey, map[string]any{
			"code":        "diwali20",
			"type":        "percentage",
			"value":       20,
			"maxDiscount": 1500,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp couponResponse
		decodeJSON(t, w, &resp)
		assert.Equal(t, "DIWALI20", resp.Code)
		assert.Equal(t, "percentage", resp.Type)
		assert.InDelta(t, 20.0, resp.Value, 0.001)
		assert.InDelta(t, 1500.0, resp.MaxDiscount, 0.001)
		assert.True(t, resp.Active)
		assert.Zero(t, resp.Uses)
		assert.False(t, resp.CreatedAt.IsZero())

		// The new coupon quotes immediately, matched case-insensitively.
		w = env.do(t, http.MethodPost, "/api/coupons/preview", userKey,
			previewBody("Diwali20", line("p-cement", 3)))
		require.Equal(t, http.StatusOK, w.Code)

		var preview previewCouponResponse
		decodeJSON(t, w, &preview)
		assert.Equal(t, "DIWALI20", preview.Code)
		assert.InDelta(t, 249.0, preview.Discount, 0.001)
	})

	t.Run("explicitly inactive coupons do not quote", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/api/coupons", adminKey, map[string]any{
			"code":        "paused50",
			"type":        "fixed",
			"value":       50,
			"minPurchase": 500,
			"active":      false,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp couponResponse
		decodeJSON(t, w, &resp)
		assert.False(t, resp.Active)

		w = env.do(t, http.MethodPost, "/api/coupons/preview", userKey,
			previewBody("PAUSED50", line("p-cement", 2)))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "invalid or expired coupon", decodeError(t, w).Message)
	})

	t.Run("duplicate code conflicts", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/api/coupons", adminKey, map[string]any{
			"code":  "save10",
			"type":  "percentage",
			"value": 5,
		})
		assert.Equal(t, http.StatusConflict, w.Code)

		resp := decodeError(t, w)
		assert.Equal(t, codeConflict, resp.Code)
		assert.Equal(t, "coupon code already exists", resp.Message)
	})

	t.Run("rejects invalid rules", func(t *testing.T) {
		cases := []struct {
			name    string
			body    map[string]any
			message string
		}{
			{
				name:    "missing code",
				body:    map[string]any{"type": "percentage", "value": 10},
				message: "invalid coupon rule: code is required",
			},
			{
				name:    "non-positive value",
				body:    map[string]any{"code": "ZERO", "type": "fixed", "value": 0},
				message: "invalid coupon rule: value must be positive",
			},
			{
				name:    "percentage over 100",
				body:    map[string]any{"code": "TOOMUCH", "type": "percentage", "value": 120},
				message: "invalid coupon rule: percentage cannot exceed 100",
			},
			{
				name:    "unknown type",
				body:    map[string]any{"code": "BOGOF", "type": "bogof", "value": 1},
				message: `invalid coupon rule: unknown type "bogof"`,
			},
			{
				name:    "fixed value above minimum purchase",
				body:    map[string]any{"code": "FLAT900", "type": "fixed", "value": 900, "minPurchase": 100},
				message: "invalid coupon rule: minimum purchase must cover the fixed value",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				env := newTestEnv(t)

				w := env.do(t, http.MethodPost, "/api/coupons", adminKey, tc.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)

				resp := decodeError(t, w)
				assert.Equal(t, codeValidation, resp.Code)
				assert.Equal(t, tc.message, resp.Message)
			})
		}
	})
}

func TestListCoupons(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/coupons", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []couponResponse
	decodeJSON(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "SAVE10", list[0].Code)
	assert.Equal(t, "percentage", list[0].Type)
	assert.Equal(t, "FLAT50", list[1].Code)
	assert.InDelta(t, 500.0, list[1].MinPurchase, 0.001)
}

func TestPreviewCoupon(t *testing.T) {
	env := newTestEnv(t)

	t.Run("percentage discount hits the cap", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/coupons/preview", userKey,
			previewBody("save10", line("p-cement", 3)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp previewCouponResponse
		decodeJSON(t, w, &resp)
		assert.Equal(t, "SAVE10", resp.Code)
		assert.InDelta(t, 1245.0, resp.Subtotal, 0.001)
		assert.InDelta(t, 100.0, resp.Discount, 0.001)
	})

	t.Run("percentage discount under the cap", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/coupons/preview", userKey,
			previewBody("SAVE10", line("p-cement", 1)))
		require.Equal(t, http.StatusOK, w.Code)

		var resp previewCouponResponse
		decodeJSON(t, w, &resp)
		assert.InDelta(t, 415.0, resp.Subtotal, 0.001)
		assert.InDelta(t, 41.5, resp.Discount, 0.001)
	})

	t.Run("fixed discount", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/coupons/preview", userKey,
			previewBody("FLAT50", line("p-cement", 2)))
		require.Equal(t, http.StatusOK, w.Code)

		var resp previewCouponResponse
		decodeJSON(t, w, &resp)
		assert.InDelta(t, 830.0, resp.Subtotal, 0.001)
		assert.InDelta(t, 50.0, resp.Discount, 0.001)
	})

	t.Run("any authenticated role may preview", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/coupons/preview", distKey,
			previewBody("SAVE10", line("p-cement", 1)))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("errors", func(t *testing.T) {
		cases := []struct {
			name    string
			body    map[string]any
			status  int
			message string
		}{
			{
				name:    "below minimum purchase",
				body:    previewBody("FLAT50", line("p-cement", 1)),
				status:  http.StatusUnprocessableEntity,
				message: "coupon FLAT50 requires a minimum purchase of 500.00",
			},
			{
				name:    "unknown code",
				body:    previewBody("BOGUS", line("p-cement", 1)),
				status:  http.StatusUnprocessableEntity,
				message: "invalid or expired coupon",
			},
			{
				name:    "empty items",
				body:    previewBody("SAVE10"),
				status:  http.StatusBadRequest,
				message: "order must contain at least one item",
			},
			{
				name:    "zero quantity",
				body:    previewBody("SAVE10", line("p-cement", 0)),
				status:  http.StatusBadRequest,
				message: "quantity must be greater than 0 for product p-cement",
			},
			{
				name:    "unknown product",
				body:    previewBody("SAVE10", line("p-missing", 1)),
				status:  http.StatusUnprocessableEntity,
				message: "product p-missing not found",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				w := env.do(t, http.MethodPost, "/api/coupons/preview", userKey, tc.body)
				assert.Equal(t, tc.status, w.Code)
				assert.Equal(t, tc.message, decodeError(t, w).Message)
			})
		}
	})
}
