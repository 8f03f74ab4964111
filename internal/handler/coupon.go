package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/coupon"
	"github.com/buildkart/buildkart/internal/domain/order"
)

type createCouponRequest struct {
	Code        string     `json:"code"`
	Type        string     `json:"type"`
	Value       float64    `json:"value"`
	MinPurchase float64    `json:"minPurchase"`
	MaxDiscount float64    `json:"maxDiscount"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Active      *bool      `json:"active"`
}

type couponResponse struct {
	Code        string     `json:"code"`
	Type        string     `json:"type"`
	Value       float64    `json:"value"`
	MinPurchase float64    `json:"minPurchase"`
	MaxDiscount float64    `json:"maxDiscount,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
	Uses        int        `json:"uses"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type previewCouponRequest struct {
	Code  string             `json:"code"`
	Items []orderLineRequest `json:"items"`
}

type previewCouponResponse struct {
	Code     string  `json:"code"`
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
}

func couponToResponse(c coupon.Coupon) couponResponse {
	return couponResponse{
		Code:        c.Code,
		Type:        string(c.Type),
		Value:       c.Value.InexactFloat64(),
		MinPurchase: c.MinPurchase.InexactFloat64(),
		MaxDiscount: c.MaxDiscount.InexactFloat64(),
		ExpiresAt:   c.ExpiresAt,
		Active:      c.Active,
		Uses:        c.Uses,
		CreatedAt:   c.CreatedAt,
	}
}

// CreateCoupon stores a new coupon. Admin only; codes are uppercased before
// storage and duplicates are rejected.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	c := coupon.Coupon{
		Code:        req.Code,
		Type:        coupon.DiscountType(req.Type),
		Value:       decimal.NewFromFloat(req.Value),
		MinPurchase: decimal.NewFromFloat(req.MinPurchase),
		MaxDiscount: decimal.NewFromFloat(req.MaxDiscount),
		ExpiresAt:   req.ExpiresAt,
		Active:      active,
	}
	if err := h.coupons.Create(r.Context(), &c); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponToResponse(c))
}

// ListCoupons returns every coupon, active or not. Admin only.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]couponResponse, len(list))
	for i, c := range list {
		out[i] = couponToResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// PreviewCoupon prices a coupon code against a cart without consuming it.
// The subtotal is computed from catalog prices, never from the client.
func (h *Handler) PreviewCoupon(w http.ResponseWriter, r *http.Request) {
	var req previewCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, r, order.ErrEmptyItems)
		return
	}

	ids := make([]string, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			respondError(w, r, &order.InvalidQuantityError{ProductID: it.ProductID})
			return
		}
		ids[i] = it.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		respondError(w, r, err)
		return
	}
	prices := make(map[string]decimal.Decimal, len(fetched))
	for _, p := range fetched {
		prices[p.ID] = p.Price
	}

	subtotal := decimal.Zero
	for _, it := range req.Items {
		price, ok := prices[it.ProductID]
		if !ok {
			respondError(w, r, &order.ProductNotFoundError{ProductID: it.ProductID})
			return
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)

	d, err := h.coupons.Quote(r.Context(), req.Code, subtotal)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewCouponResponse{
		Code:     d.Code,
		Subtotal: subtotal.InexactFloat64(),
		Discount: d.Amount.InexactFloat64(),
	})
}
