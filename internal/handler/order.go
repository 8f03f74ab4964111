package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/order"
)

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	DistributorID string             `json:"distributorId"`
	Items         []orderLineRequest `json:"items"`
	Address       order.Address      `json:"address"`
	PaymentMethod string             `json:"paymentMethod"`
	CouponCode    string             `json:"couponCode"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type approveOrderRequest struct {
	DeliveryCharge *float64 `json:"deliveryCharge"`
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	Number          string               `json:"orderNumber"`
	UserID          string               `json:"userId"`
	DistributorID   string               `json:"distributorId"`
	Items           []orderItemResponse  `json:"items"`
	Address         order.Address        `json:"address"`
	Subtotal        float64              `json:"subtotal"`
	DeliveryCharge  float64              `json:"deliveryCharge"`
	Discount        float64              `json:"discount"`
	Total           float64              `json:"total"`
	CouponCode      string               `json:"couponCode,omitempty"`
	Status          order.Status         `json:"status"`
	ApprovalStatus  order.ApprovalStatus `json:"approvalStatus"`
	Approval        *order.Approval      `json:"approval,omitempty"`
	History         []order.HistoryEntry `json:"history"`
	Cancellation    *order.Cancellation  `json:"cancellation,omitempty"`
	PaymentMethod   order.PaymentMethod  `json:"paymentMethod"`
	PaymentStatus   order.PaymentStatus  `json:"paymentStatus"`
	ProviderOrderID string               `json:"providerOrderId,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func orderToResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Unit:      it.Unit,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}
	return orderResponse{
		Number:          o.Number,
		UserID:          o.UserID,
		DistributorID:   o.DistributorID,
		Items:           items,
		Address:         o.Address,
		Subtotal:        o.Subtotal.InexactFloat64(),
		DeliveryCharge:  o.DeliveryCharge.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		CouponCode:      o.CouponCode,
		Status:          o.Status,
		ApprovalStatus:  o.ApprovalStatus,
		Approval:        o.Approval,
		History:         o.History,
		Cancellation:    o.Cancellation,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		ProviderOrderID: o.ProviderOrderID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// actorOf resolves the authenticated principal on the request to the order
// actor it acts as. Without a principal the zero actor is returned, which
// fails every capability check downstream.
func actorOf(r *http.Request) order.Actor {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		return order.Actor{}
	}
	return actorFor(p)
}

// PlaceOrder handles checkout: it validates the cart against the catalog,
// prices it, and persists the order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		respondError(w, r, &order.MissingFieldError{Field: "paymentMethod"})
		return
	}
	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, r, err)
		return
	}

	lines := make([]order.Line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.Place(r.Context(), actorOf(r), order.PlaceRequest{
		DistributorID: req.DistributorID,
		Lines:         lines,
		Address:       req.Address,
		PaymentMethod: method,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderToResponse(o))
}

// GetOrder returns one order by number, if the caller may see it.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

// ListOrders returns the caller's orders: a customer sees their own, a
// distributor their order book.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListForActor(r.Context(), actorOf(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = orderToResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateOrderStatus moves an order along the fulfilment chain.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"), status, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

// ApproveOrder records the distributor's acceptance, optionally overriding
// the delivery charge.
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	var req approveOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	var override *decimal.Decimal
	if req.DeliveryCharge != nil {
		d := decimal.NewFromFloat(*req.DeliveryCharge)
		override = &d
	}

	o, err := h.orders.Approve(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"), override)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

// RejectOrder records the distributor's refusal and cancels the order.
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	var req rejectOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	o, err := h.orders.Reject(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

// CancelOrder is the customer-facing cancellation endpoint. The body, and
// the reason in it, are optional.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	o, err := h.orders.Cancel(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

// VerifyPayment checks the signature the customer brings back from the
// payment flow and records the verdict.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.PaymentID == "" {
		respondError(w, r, &order.MissingFieldError{Field: "paymentId"})
		return
	}
	if req.Signature == "" {
		respondError(w, r, &order.MissingFieldError{Field: "signature"})
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), actorOf(r), chi.URLParam(r, "orderNumber"), req.PaymentID, req.Signature)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}
