package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	// MercadoPagoGatewayName: имя провайдера Mercado Pago.
	MercadoPagoGatewayName = "mercadopago"
	// DefaultMercadoPagoURL: продовый адрес REST API.
	DefaultMercadoPagoURL = "https://api.mercadopago.com"

	maxMercadoPagoResponseSize = 1 << 20
	// mpCustomerExists: код причины "customer already exist".
	mpCustomerExists = "101"
	mpBoletoMethod   = "bolbradesco"
)

// MercadoPagoConfig: параметры клиента.
type MercadoPagoConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// MercadoPagoGateway: платежи через REST API Mercado Pago.
type MercadoPagoGateway struct {
	cfg    MercadoPagoConfig
	client *http.Client
}

// NewMercadoPagoGateway создаёт шлюз; httpClient == nil: клиент с таймаутом из cfg.
func NewMercadoPagoGateway(cfg MercadoPagoConfig, httpClient *http.Client) (*MercadoPagoGateway, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("mercadopago: access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMercadoPagoURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MercadoPagoGateway{cfg: cfg, client: httpClient}, nil
}

func (g *MercadoPagoGateway) Name() string { return MercadoPagoGatewayName }

type mpIdentification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type mpCustomerRequest struct {
	Email          string            `json:"email"`
	FirstName      string            `json:"first_name,omitempty"`
	LastName       string            `json:"last_name,omitempty"`
	Identification *mpIdentification `json:"identification,omitempty"`
}

type mpCustomer struct {
	ID string `json:"id"`
}

type mpCustomerSearch struct {
	Results []mpCustomer `json:"results"`
}

type mpPayer struct {
	Type           string            `json:"type,omitempty"`
	ID             string            `json:"id,omitempty"`
	Email          string            `json:"email,omitempty"`
	Identification *mpIdentification `json:"identification,omitempty"`
}

type mpPaymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description,omitempty"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Token             string      `json:"token,omitempty"`
	Installments      int         `json:"installments"`
	Capture           *bool       `json:"capture,omitempty"`
	ExternalReference string      `json:"external_reference"`
	Payer             mpPayer     `json:"payer"`
}

type mpPayment struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	StatusDetail       string `json:"status_detail"`
	Captured           bool   `json:"captured"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode    string `json:"qr_code"`
			TicketURL string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
}

type mpRefundRequest struct {
	Amount json.Number `json:"amount"`
}

type mpRefund struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type mpErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Cause   []struct {
		Code        json.RawMessage `json:"code"`
		Description string          `json:"description"`
	} `json:"cause"`
}

// mpAPIError: ответ API с кодом 4xx/5xx.
type mpAPIError struct {
	StatusCode int
	Body       mpErrorBody
}

func (e *mpAPIError) Error() string {
	return fmt.Sprintf("mercadopago: HTTP %d: %s", e.StatusCode, e.Body.Message)
}

func (e *mpAPIError) hasCause(code string) bool {
	for _, c := range e.Body.Cause {
		if strings.Trim(string(c.Code), `"`) == code {
			return true
		}
	}
	return false
}

// CreateCustomer регистрирует покупателя; если email уже есть, возвращает найденного.
func (g *MercadoPagoGateway) CreateCustomer(ctx context.Context, customer domain.GatewayCustomer) (string, error) {
	first, last := splitName(customer.Name)
	req := mpCustomerRequest{
		Email:          customer.Email,
		FirstName:      first,
		LastName:       last,
		Identification: identification(customer.Document),
	}

	var created mpCustomer
	err := g.do(ctx, http.MethodPost, "/v1/customers", req, "", &created)
	var apiErr *mpAPIError
	if errors.As(err, &apiErr) && apiErr.hasCause(mpCustomerExists) {
		var found mpCustomerSearch
		query := url.Values{"email": {customer.Email}}
		if err := g.do(ctx, http.MethodGet, "/v1/customers/search?"+query.Encode(), nil, "", &found); err != nil {
			return "", mapMercadoPagoError("search customer", err)
		}
		if len(found.Results) == 0 {
			return "", fmt.Errorf("%w: mercadopago customer %s not found after conflict", domain.ErrPaymentIndeterminate, customer.Email)
		}
		return found.Results[0].ID, nil
	}
	if err != nil {
		return "", mapMercadoPagoError("create customer", err)
	}
	return created.ID, nil
}

// CreatePayment создаёт платёж. Карта создаётся с capture=false и списывается в AcceptPayment.
func (g *MercadoPagoGateway) CreatePayment(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	body := mpPaymentRequest{
		TransactionAmount: json.Number(domain.MinorToDecimal(req.AmountMinor).StringFixed(2)),
		Description:       req.Description,
		Installments:      1,
		ExternalReference: req.OrderID,
		Payer: mpPayer{
			Email:          req.Customer.Email,
			Identification: identification(req.Customer.Document),
		},
	}
	if req.CustomerRef != "" {
		body.Payer.Type = "customer"
		body.Payer.ID = req.CustomerRef
	}

	switch req.Method {
	case domain.PaymentMethodCreditCard:
		if req.CardBrand == "" {
			return domain.ChargeResult{}, fmt.Errorf("%w: card brand is required", domain.ErrPaymentMethodInvalid)
		}
		capture := false
		body.PaymentMethodID = strings.ToLower(req.CardBrand)
		body.Token = req.CardToken
		body.Installments = max(req.Installments, 1)
		body.Capture = &capture
	case domain.PaymentMethodPix:
		body.PaymentMethodID = string(domain.PaymentMethodPix)
	case domain.PaymentMethodBoleto:
		body.PaymentMethodID = mpBoletoMethod
	default:
		return domain.ChargeResult{}, domain.ErrPaymentMethodInvalid
	}

	var payment mpPayment
	if err := g.do(ctx, http.MethodPost, "/v1/payments", body, req.IdempotencyKey, &payment); err != nil {
		return domain.ChargeResult{}, mapMercadoPagoError("create payment", err)
	}
	return mercadoPagoResult(payment), nil
}

// AcceptPayment списывает авторизованный платёж или возвращает его текущий статус.
func (g *MercadoPagoGateway) AcceptPayment(ctx context.Context, externalID string) (domain.ChargeResult, error) {
	path := "/v1/payments/" + url.PathEscape(externalID)

	var payment mpPayment
	if err := g.do(ctx, http.MethodGet, path, nil, "", &payment); err != nil {
		return domain.ChargeResult{}, mapMercadoPagoError("get payment", err)
	}
	if payment.Status != "authorized" {
		return mercadoPagoResult(payment), nil
	}

	if err := g.do(ctx, http.MethodPut, path, map[string]bool{"capture": true}, "capture-"+externalID, &payment); err != nil {
		return domain.ChargeResult{}, mapMercadoPagoError("capture payment", err)
	}
	return mercadoPagoResult(payment), nil
}

// Refund возвращает amountMinor по платежу.
func (g *MercadoPagoGateway) Refund(ctx context.Context, externalID string, amountMinor int64, idempotencyKey string) (domain.PaymentStatus, error) {
	body := mpRefundRequest{Amount: json.Number(domain.MinorToDecimal(amountMinor).StringFixed(2))}

	var refund mpRefund
	path := "/v1/payments/" + url.PathEscape(externalID) + "/refunds"
	if err := g.do(ctx, http.MethodPost, path, body, idempotencyKey, &refund); err != nil {
		return domain.PaymentStatusFailed, mapMercadoPagoError("refund", err)
	}
	if refund.Status != "" && refund.Status != "approved" {
		return domain.PaymentStatusFailed, fmt.Errorf("%w: mercadopago refund %d is %s", domain.ErrPaymentDeclined, refund.ID, refund.Status)
	}
	return domain.PaymentStatusRefunded, nil
}

// Void отменяет авторизованный или ожидающий платёж через PUT status=cancelled.
func (g *MercadoPagoGateway) Void(ctx context.Context, externalID, idempotencyKey string) (domain.PaymentStatus, error) {
	path := "/v1/payments/" + url.PathEscape(externalID)

	var payment mpPayment
	if err := g.do(ctx, http.MethodGet, path, nil, "", &payment); err != nil {
		return "", mapMercadoPagoError("get payment", err)
	}
	switch payment.Status {
	case "cancelled":
		return domain.PaymentStatusVoided, nil
	case "authorized", "pending", "in_process":
	default:
		return mercadoPagoStatus(payment.Status), nil
	}

	if err := g.do(ctx, http.MethodPut, path, map[string]string{"status": "cancelled"}, idempotencyKey, &payment); err != nil {
		return "", mapMercadoPagoError("cancel payment", err)
	}
	if payment.Status != "cancelled" {
		return mercadoPagoStatus(payment.Status), fmt.Errorf("%w: mercadopago payment %d is %s after cancel", domain.ErrPaymentIndeterminate, payment.ID, payment.Status)
	}
	return domain.PaymentStatusVoided, nil
}

func (g *MercadoPagoGateway) do(ctx context.Context, method, path string, in any, idempotencyKey string, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mercadopago: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("mercadopago: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMercadoPagoResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &mpAPIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("mercadopago: decode response: %w", err)
	}
	return nil
}

func mercadoPagoResult(p mpPayment) domain.ChargeResult {
	result := domain.ChargeResult{
		ExternalID: strconv.FormatInt(p.ID, 10),
		Status:     mercadoPagoStatus(p.Status),
	}
	switch {
	case p.PointOfInteraction.TransactionData.QRCode != "":
		result.Instructions = p.PointOfInteraction.TransactionData.QRCode
	case p.TransactionDetails.ExternalResourceURL != "":
		result.Instructions = p.TransactionDetails.ExternalResourceURL
	case p.PointOfInteraction.TransactionData.TicketURL != "":
		result.Instructions = p.PointOfInteraction.TransactionData.TicketURL
	}
	return result
}

func mercadoPagoStatus(status string) domain.PaymentStatus {
	switch status {
	case "approved":
		return domain.PaymentStatusCaptured
	case "authorized":
		return domain.PaymentStatusAuthorized
	case "rejected", "cancelled":
		return domain.PaymentStatusFailed
	case "refunded", "charged_back":
		return domain.PaymentStatusRefunded
	default:
		// pending, in_process, in_mediation
		return domain.PaymentStatusPending
	}
}

func mapMercadoPagoError(op string, err error) error {
	var apiErr *mpAPIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: mercadopago %s: %v", domain.ErrPaymentTemporary, op, err)
	}

	var kind error
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode >= http.StatusInternalServerError:
		kind = domain.ErrPaymentTemporary
	case apiErr.StatusCode == http.StatusConflict:
		kind = domain.ErrPaymentIndeterminate
	case apiErr.StatusCode == http.StatusNotFound:
		kind = domain.ErrPaymentNotFound
	default:
		kind = domain.ErrPaymentDeclined
	}
	return fmt.Errorf("%w: mercadopago %s: %v", kind, op, apiErr)
}

func identification(document string) *mpIdentification {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, document)
	switch len(digits) {
	case 11:
		return &mpIdentification{Type: "CPF", Number: digits}
	case 14:
		return &mpIdentification{Type: "CNPJ", Number: digits}
	default:
		return nil
	}
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

var _ domain.PaymentGateway = (*MercadoPagoGateway)(nil)
