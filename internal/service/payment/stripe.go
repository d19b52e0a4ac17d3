package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StripeGatewayName: имя провайдера Stripe.
const StripeGatewayName = "stripe"

// StripeGateway: платежи через PaymentIntents с ручным capture.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway создаёт шлюз. backends == nil означает продовые адреса Stripe.
func NewStripeGateway(secretKey string, backends *stripe.Backends) (*StripeGateway, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	return &StripeGateway{api: client.New(secretKey, backends)}, nil
}

// NewStripeBackends направляет клиент на url (stripe-mock, тестовый сервер).
func NewStripeBackends(url string, maxRetries int64) *stripe.Backends {
	cfg := &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(maxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
}

func (g *StripeGateway) Name() string { return StripeGatewayName }

// CreateCustomer создаёт Customer; повтор для того же покупателя идемпотентен.
func (g *StripeGateway) CreateCustomer(ctx context.Context, customer domain.GatewayCustomer) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(customer.Email),
		Name:  stripe.String(customer.Name),
	}
	if customer.Phone != "" {
		params.Phone = stripe.String(customer.Phone)
	}
	params.Context = ctx
	params.AddMetadata("customer_id", customer.ID)
	if customer.Document != "" {
		params.AddMetadata("document", customer.Document)
	}
	if customer.ID != "" {
		params.SetIdempotencyKey("customer-" + customer.ID)
	}

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", mapStripeError("create customer", err)
	}
	return cus.ID, nil
}

// CreatePayment создаёт PaymentIntent. Карта подтверждается сразу и ждёт capture,
// pix возвращает инструкции. Boleto через Stripe не поддерживается.
func (g *StripeGateway) CreatePayment(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		Confirm:     stripe.Bool(true),
	}
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}

	switch req.Method {
	case domain.PaymentMethodCreditCard:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		params.PaymentMethod = stripe.String(req.CardToken)
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	case domain.PaymentMethodPix:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"pix"})
		params.PaymentMethodData = &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("pix"),
		}
	default:
		return domain.ChargeResult{}, fmt.Errorf("%w: stripe does not accept %s", domain.ErrPaymentMethodInvalid, req.Method)
	}

	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("installments", strconv.Itoa(req.Installments))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.ChargeResult{}, mapStripeError("create payment", err)
	}
	return stripeResult(pi), nil
}

// AcceptPayment списывает авторизованный PaymentIntent; иначе возвращает текущий статус.
func (g *StripeGateway) AcceptPayment(ctx context.Context, externalID string) (domain.ChargeResult, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := g.api.PaymentIntents.Get(externalID, getParams)
	if err != nil {
		return domain.ChargeResult{}, mapStripeError("get payment", err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return stripeResult(pi), nil
	}

	captureParams := &stripe.PaymentIntentCaptureParams{}
	captureParams.Context = ctx
	captureParams.SetIdempotencyKey("capture-" + externalID)
	pi, err = g.api.PaymentIntents.Capture(externalID, captureParams)
	if err != nil {
		return domain.ChargeResult{}, mapStripeError("capture payment", err)
	}
	return stripeResult(pi), nil
}

// Refund возвращает amountMinor по PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, externalID string, amountMinor int64, idempotencyKey string) (domain.PaymentStatus, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(externalID),
		Amount:        stripe.Int64(amountMinor),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return domain.PaymentStatusFailed, mapStripeError("refund", err)
	}
	switch refund.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		return domain.PaymentStatusRefunded, nil
	default:
		return domain.PaymentStatusFailed, fmt.Errorf("%w: stripe refund %s is %s", domain.ErrPaymentDeclined, refund.ID, refund.Status)
	}
}

// Void отменяет PaymentIntent, который ещё не списан (requires_capture, ожидающий pix).
func (g *StripeGateway) Void(ctx context.Context, externalID, idempotencyKey string) (domain.PaymentStatus, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := g.api.PaymentIntents.Get(externalID, getParams)
	if err != nil {
		return "", mapStripeError("get payment", err)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentStatusCaptured, nil
	case stripe.PaymentIntentStatusCanceled:
		return domain.PaymentStatusVoided, nil
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err = g.api.PaymentIntents.Cancel(externalID, params)
	if err != nil {
		return "", mapStripeError("cancel payment", err)
	}
	if pi.Status != stripe.PaymentIntentStatusCanceled {
		return stripeStatus(pi.Status), fmt.Errorf("%w: stripe payment %s is %s after cancel", domain.ErrPaymentIndeterminate, pi.ID, pi.Status)
	}
	return domain.PaymentStatusVoided, nil
}

func stripeResult(pi *stripe.PaymentIntent) domain.ChargeResult {
	result := domain.ChargeResult{ExternalID: pi.ID, Status: stripeStatus(pi.Status)}
	if pi.NextAction != nil && pi.NextAction.PixDisplayQRCode != nil {
		result.Instructions = pi.NextAction.PixDisplayQRCode.Data
	}
	return result
}

func stripeStatus(status stripe.PaymentIntentStatus) domain.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return domain.PaymentStatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentStatusCaptured
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return domain.PaymentStatusFailed
	default:
		// processing, requires_action, requires_confirmation
		return domain.PaymentStatusPending
	}
}

// mapStripeError сводит ошибки Stripe к доменной классификации.
func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: stripe %s: %v", domain.ErrPaymentTemporary, op, err)
	}

	var kind error
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		kind = domain.ErrPaymentDeclined
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		kind = domain.ErrPaymentIndeterminate
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.Type == stripe.ErrorTypeAPI:
		kind = domain.ErrPaymentTemporary
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		kind = domain.ErrPaymentNotFound
	default:
		kind = domain.ErrPaymentDeclined
	}
	return fmt.Errorf("%w: stripe %s: %s (%s)", kind, op, stripeErr.Msg, stripeErr.Code)
}

var _ domain.PaymentGateway = (*StripeGateway)(nil)
