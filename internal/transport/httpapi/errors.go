package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

type errorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable сопоставляет доменные ошибки с HTTP-ответом. Порядок важен: первая совпавшая побеждает.
var errorTable = []errorMapping{
	{domain.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{domain.ErrCategoryNotFound, http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	{domain.ErrCampaignNotFound, http.StatusNotFound, "CAMPAIGN_NOT_FOUND"},
	{domain.ErrCartNotFound, http.StatusNotFound, "CART_NOT_FOUND"},
	{domain.ErrCartItemNotFound, http.StatusNotFound, "CART_ITEM_NOT_FOUND"},
	{domain.ErrCheckoutJobNotFound, http.StatusNotFound, "CHECKOUT_JOB_NOT_FOUND"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND"},
	{domain.ErrGatewayNotFound, http.StatusNotFound, "GATEWAY_NOT_FOUND"},
	{domain.ErrCouponNotFound, http.StatusNotFound, "COUPON_NOT_FOUND"},

	{domain.ErrItemQtyInvalid, http.StatusBadRequest, "INVALID_QTY"},
	{domain.ErrZipCodeInvalid, http.StatusBadRequest, "INVALID_ZIP_CODE"},
	{domain.ErrCustomerEmailRequired, http.StatusBadRequest, "EMAIL_REQUIRED"},
	{domain.ErrPaymentMethodInvalid, http.StatusBadRequest, "INVALID_PAYMENT_METHOD"},
	{domain.ErrInstallmentsInvalid, http.StatusBadRequest, "INVALID_INSTALLMENTS"},
	{domain.ErrCardTokenRequired, http.StatusBadRequest, "CARD_TOKEN_REQUIRED"},
	{domain.ErrRefundAmountInvalid, http.StatusBadRequest, "INVALID_REFUND_AMOUNT"},
	{domain.ErrIdempotencyKeyRequired, http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED"},

	{domain.ErrCartLocked, http.StatusConflict, "CART_LOCKED"},
	{domain.ErrCartBusy, http.StatusConflict, "CART_BUSY"},
	{domain.ErrInventoryUnavailable, http.StatusConflict, "OUT_OF_STOCK"},
	{domain.ErrOrderInvalidState, http.StatusConflict, "INVALID_ORDER_STATE"},
	{domain.ErrIdempotencyHashMismatch, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED"},

	{domain.ErrCartEmpty, http.StatusUnprocessableEntity, "CART_EMPTY"},
	{domain.ErrCartStage, http.StatusUnprocessableEntity, "INVALID_CART_STAGE"},
	{domain.ErrCartCurrencyMismatch, http.StatusUnprocessableEntity, "CURRENCY_MISMATCH"},
	{domain.ErrProductInactive, http.StatusUnprocessableEntity, "PRODUCT_INACTIVE"},
	{domain.ErrCouponInactive, http.StatusUnprocessableEntity, "COUPON_INACTIVE"},
	{domain.ErrCouponExpired, http.StatusUnprocessableEntity, "COUPON_EXPIRED"},
	{domain.ErrCouponExhausted, http.StatusUnprocessableEntity, "COUPON_EXHAUSTED"},
	{domain.ErrCouponMinSubtotal, http.StatusUnprocessableEntity, "COUPON_MIN_SUBTOTAL"},
	{domain.ErrCampaignClosed, http.StatusUnprocessableEntity, "CAMPAIGN_CLOSED"},
	{domain.ErrPaymentDeclined, http.StatusUnprocessableEntity, "PAYMENT_DECLINED"},
}

// writeDomainError отвечает по errorTable; конфликты версий и временные ошибки: с Retry-After.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			writeError(w, m.status, err.Error(), m.code)
			return
		}
	}

	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, err.Error(), "REQUEST_IN_PROGRESS")
	case domain.IsVersionConflict(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "concurrent modification, please retry", "CONFLICT")
	case domain.IsTemporary(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error(), "TEMPORARY_UNAVAILABLE")
	default:
		logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("unhandled error in HTTP handler")
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred", "INTERNAL_ERROR")
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	details := make([]fieldDetail, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, fieldDetail{Field: e.Field(), Message: validationMessage(e)})
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "request validation failed",
		Code:    "VALIDATION_ERROR",
		Details: details,
	})
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "invalid email format"
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max", "lte":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "len":
		return "must be exactly " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "numeric":
		return "must be numeric"
	default:
		return "invalid value"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
