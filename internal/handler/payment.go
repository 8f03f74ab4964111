package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/buildkart/buildkart/internal/domain/order"
	"github.com/buildkart/buildkart/internal/payment"
)

// maxWebhookBody bounds how much of a webhook body is read.
const maxWebhookBody = 1 << 20

type webhookAck struct {
	Status string `json:"status"`
}

// PaymentWebhook ingests gateway payment events. The raw body is verified
// against the signature header before any parsing; a bad signature mutates
// nothing. Events are deduplicated by ID when a deduper is configured.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "unreadable body")
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if sig == "" || !h.webhooks.VerifyWebhookSignature(body, sig) {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid webhook signature")
		return
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed webhook body")
		return
	}

	lg := zctx.From(r.Context())

	if h.dedupe != nil && ev.ID != "" {
		first, err := h.dedupe.FirstDelivery(r.Context(), ev.ID)
		if err != nil {
			// Dedupe is best-effort; a broken Redis must not drop events.
			lg.Warn("webhook dedupe unavailable", zap.Error(err))
		} else if !first {
			writeJSON(w, http.StatusOK, webhookAck{Status: "duplicate"})
			return
		}
	}

	switch ev.Type {
	case payment.EventPaymentCaptured:
		_, err = h.orders.MarkPaymentCaptured(r.Context(), ev.ProviderOrderID, ev.PaymentID)
	case payment.EventPaymentFailed:
		_, err = h.orders.MarkPaymentFailed(r.Context(), ev.ProviderOrderID)
	default:
		lg.Info("ignoring webhook event", zap.String("event", ev.Type))
		writeJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
		return
	}
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// Ack unknown intents so the gateway stops redelivering them.
			lg.Warn("webhook for unknown payment intent",
				zap.String("event", ev.Type),
				zap.String("provider_order_id", ev.ProviderOrderID),
			)
			writeJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
			return
		}
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{Status: "ok"})
}
