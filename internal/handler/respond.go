package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/buildkart/buildkart/internal/domain/coupon"
	"github.com/buildkart/buildkart/internal/domain/distributor"
	"github.com/buildkart/buildkart/internal/domain/order"
	"github.com/buildkart/buildkart/internal/domain/product"
)

// Categorical error codes carried in the response envelope.
const (
	codeValidation   = "validation"
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
	codeInternal     = "internal"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// respondError maps a domain error onto the HTTP envelope. Unrecognized
// errors are logged and answered with a generic 500 so internals never leak.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classifyError(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, codeForStatus(status), msg)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codeValidation
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusUnauthorized:
		return codeUnauthorized
	case http.StatusForbidden:
		return codeForbidden
	case http.StatusConflict:
		return codeConflict
	}
	return codeInternal
}

// sentinelStatus maps sentinel errors to their HTTP status. Malformed input
// shapes are 400; business rules that reject otherwise well-formed input are
// 422, following the checkout convention.
var sentinelStatus = []struct {
	err    error
	status int
}{
	{order.ErrNotFound, http.StatusNotFound},
	{product.ErrNotFound, http.StatusNotFound},
	{distributor.ErrNotFound, http.StatusNotFound},
	{order.ErrForbidden, http.StatusForbidden},
	{order.ErrVersionConflict, http.StatusConflict},
	{coupon.ErrCodeTaken, http.StatusConflict},
	{order.ErrEmptyItems, http.StatusBadRequest},
	{order.ErrReasonRequired, http.StatusBadRequest},
	{coupon.ErrInvalidCoupon, http.StatusUnprocessableEntity},
	{order.ErrAlreadyPaid, http.StatusUnprocessableEntity},
	{order.ErrPaymentClosed, http.StatusUnprocessableEntity},
	{order.ErrNotOnlinePayment, http.StatusUnprocessableEntity},
	{order.ErrSignatureMismatch, http.StatusUnprocessableEntity},
}

// classifyError resolves an error chain to a status and the message of the
// matched domain error, so wrap prefixes added by services stay internal.
func classifyError(err error) (int, string) {
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}

	var (
		missingField  *order.MissingFieldError
		unknownStatus *order.UnknownStatusError
		unknownMethod *order.UnknownPaymentMethodError
		invalidQty    *order.InvalidQuantityError
		invalidRule   *coupon.InvalidRuleError
	)
	switch {
	case errors.As(err, &missingField):
		return http.StatusBadRequest, missingField.Error()
	case errors.As(err, &unknownStatus):
		return http.StatusBadRequest, unknownStatus.Error()
	case errors.As(err, &unknownMethod):
		return http.StatusBadRequest, unknownMethod.Error()
	case errors.As(err, &invalidQty):
		return http.StatusBadRequest, invalidQty.Error()
	case errors.As(err, &invalidRule):
		return http.StatusBadRequest, invalidRule.Error()
	}

	var (
		productNotFound *order.ProductNotFoundError
		unavailable     *order.ProductUnavailableError
		wrongDist       *order.WrongDistributorError
		noStock         *order.InsufficientStockError
		distDown        *order.DistributorUnavailableError
		minPurchase     *coupon.MinPurchaseError
		notCancellable  *order.NotCancellableError
		decided         *order.ApprovalDecidedError
		transition      *order.TransitionError
	)
	switch {
	case errors.As(err, &productNotFound):
		return http.StatusUnprocessableEntity, productNotFound.Error()
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity, unavailable.Error()
	case errors.As(err, &wrongDist):
		return http.StatusUnprocessableEntity, wrongDist.Error()
	case errors.As(err, &noStock):
		return http.StatusUnprocessableEntity, noStock.Error()
	case errors.As(err, &distDown):
		return http.StatusUnprocessableEntity, distDown.Error()
	case errors.As(err, &minPurchase):
		return http.StatusUnprocessableEntity, minPurchase.Error()
	case errors.As(err, &notCancellable):
		return http.StatusUnprocessableEntity, notCancellable.Error()
	case errors.As(err, &decided):
		return http.StatusUnprocessableEntity, decided.Error()
	case errors.As(err, &transition):
		return http.StatusUnprocessableEntity, transition.Error()
	}

	return http.StatusInternalServerError, ""
}
