package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildkart/buildkart/internal/domain/coupon"
	"github.com/buildkart/buildkart/internal/domain/identity"
	"github.com/buildkart/buildkart/internal/domain/order"
	"github.com/buildkart/buildkart/internal/domain/product"
	"github.com/buildkart/buildkart/internal/payment"
)

// WebhookVerifier checks the gateway's signature over a raw webhook body.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the HTTP API, delegating business logic to the order
// service, coupon ledger, and product repository.
type Handler struct {
	orders   *order.Service
	products product.Repository
	coupons  *coupon.Ledger
	webhooks WebhookVerifier
	dedupe   payment.Deduper

	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
// dedupe may be nil; webhook events are then processed without delivery
// deduplication.
func NewHandler(
	cfg HandlerConfig,
	orders *order.Service,
	products product.Repository,
	coupons *coupon.Ledger,
	webhooks WebhookVerifier,
	dedupe payment.Deduper,
) *Handler {
	return &Handler{
		orders:       orders,
		products:     products,
		coupons:      coupons,
		webhooks:     webhooks,
		dedupe:       dedupe,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// NewRouter mounts all API routes under /api. The webhook endpoint
// authenticates with the gateway signature instead of an API key; everything
// else sits behind the key middleware.
func NewRouter(h *Handler, sec *Security) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(sec.Authenticate)

			r.Get("/products", h.ListProducts)
			r.Get("/products/{productID}", h.GetProduct)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderNumber}", h.GetOrder)
			r.Post("/orders/{orderNumber}/status", h.UpdateOrderStatus)
			r.Post("/orders/{orderNumber}/approve", h.ApproveOrder)
			r.Post("/orders/{orderNumber}/reject", h.RejectOrder)
			r.Post("/orders/{orderNumber}/cancel", h.CancelOrder)
			r.Post("/orders/{orderNumber}/payment/verify", h.VerifyPayment)

			r.Post("/coupons/preview", h.PreviewCoupon)

			r.Group(func(r chi.Router) {
				r.Use(sec.RequireRole(identity.RoleAdmin))
				r.Post("/coupons", h.CreateCoupon)
				r.Get("/coupons", h.ListCoupons)
			})
		})
	})

	return r
}
