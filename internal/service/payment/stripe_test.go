package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stripeCall struct {
	method         string
	path           string
	idempotencyKey string
	form           map[string]string
}

type stripeServer struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []stripeCall
	handler func(w http.ResponseWriter, r *http.Request)
}

func newStripeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*stripeServer, *StripeGateway) {
	t.Helper()

	srv := &stripeServer{handler: handler}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		call := stripeCall{
			method:         r.Method,
			path:           r.URL.Path,
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			form:           map[string]string{},
		}
		for key := range r.PostForm {
			call.form[key] = r.PostForm.Get(key)
		}
		srv.mu.Lock()
		srv.calls = append(srv.calls, call)
		srv.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		srv.handler(w, r)
	}))
	t.Cleanup(srv.Close)

	gw, err := NewStripeGateway("sk_test_123", NewStripeBackends(srv.URL, 0))
	require.NoError(t, err)
	return srv, gw
}

func (s *stripeServer) lastCall() stripeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway(" ", nil)
	assert.Error(t, err)
}

func TestStripeGateway_CardAuthorizeAndCapture(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/customers":
			_, _ = w.Write([]byte(`{"id":"cus_1","object":"customer"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"requires_capture"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_1":
			_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"requires_capture"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_1/capture":
			_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"succeeded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown"}}`))
		}
	})
	ctx := context.Background()

	ref, err := gw.CreateCustomer(ctx, domain.GatewayCustomer{ID: "c-1", Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", ref)
	assert.Equal(t, "customer-c-1", srv.lastCall().idempotencyKey)
	assert.Equal(t, "ana@example.com", srv.lastCall().form["email"])

	res, err := gw.CreatePayment(ctx, domain.ChargeRequest{
		OrderID:        "o-1",
		CustomerRef:    ref,
		AmountMinor:    12990,
		Currency:       "BRL",
		Method:         domain.PaymentMethodCreditCard,
		Installments:   3,
		CardToken:      "pm_card_visa",
		IdempotencyKey: "job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeResult{ExternalID: "pi_1", Status: domain.PaymentStatusAuthorized}, res)

	call := srv.lastCall()
	assert.Equal(t, "job-1", call.idempotencyKey)
	assert.Equal(t, "12990", call.form["amount"])
	assert.Equal(t, "brl", call.form["currency"])
	assert.Equal(t, "manual", call.form["capture_method"])
	assert.Equal(t, "pm_card_visa", call.form["payment_method"])
	assert.Equal(t, "o-1", call.form["metadata[order_id]"])

	accepted, err := gw.AcceptPayment(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, accepted.Status)
	assert.Equal(t, "capture-pi_1", srv.lastCall().idempotencyKey)
}

func TestStripeGateway_AcceptDoesNotCaptureTwice(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_2","object":"payment_intent","status":"succeeded"}`))
	})

	res, err := gw.AcceptPayment(context.Background(), "pi_2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, res.Status)
	assert.Len(t, srv.calls, 1)
	assert.Equal(t, http.MethodGet, srv.lastCall().method)
}

func TestStripeGateway_Pix(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_3","object":"payment_intent","status":"requires_action",
			"next_action":{"type":"pix_display_qr_code","pix_display_qr_code":{"data":"000201pix"}}}`))
	})

	res, err := gw.CreatePayment(context.Background(), domain.ChargeRequest{OrderID: "o-3", AmountMinor: 500, Currency: "brl", Method: domain.PaymentMethodPix})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, res.Status)
	assert.Equal(t, "000201pix", res.Instructions)
	assert.Equal(t, "pix", srv.lastCall().form["payment_method_data[type]"])

	_, err = gw.CreatePayment(context.Background(), domain.ChargeRequest{OrderID: "o-3", Method: domain.PaymentMethodBoleto})
	assert.ErrorIs(t, err, domain.ErrPaymentMethodInvalid)
}

func TestStripeGateway_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "card declined", status: http.StatusPaymentRequired, body: `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`, want: domain.ErrPaymentDeclined},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`, want: domain.ErrPaymentTemporary},
		{name: "api error", status: http.StatusInternalServerError, body: `{"error":{"type":"api_error","message":"oops"}}`, want: domain.ErrPaymentTemporary},
		{name: "idempotency", status: http.StatusBadRequest, body: `{"error":{"type":"idempotency_error","message":"keys reused"}}`, want: domain.ErrPaymentIndeterminate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := gw.CreatePayment(context.Background(), domain.ChargeRequest{
				OrderID: "o-4", AmountMinor: 100, Currency: "brl",
				Method: domain.PaymentMethodCreditCard, CardToken: "pm_card", IdempotencyKey: "k",
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStripeGateway_Refund(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded"}`))
	})

	status, err := gw.Refund(context.Background(), "pi_1", 500, "refund-o-1-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, status)

	call := srv.lastCall()
	assert.Equal(t, "/v1/refunds", call.path)
	assert.Equal(t, "pi_1", call.form["payment_intent"])
	assert.Equal(t, "500", call.form["amount"])
	assert.Equal(t, "refund-o-1-1", call.idempotencyKey)
}

func TestStripeGateway_VoidCancelsUncapturedIntent(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_5":
			_, _ = w.Write([]byte(`{"id":"pi_5","object":"payment_intent","status":"requires_capture"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_5/cancel":
			_, _ = w.Write([]byte(`{"id":"pi_5","object":"payment_intent","status":"canceled"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown"}}`))
		}
	})

	status, err := gw.Void(context.Background(), "pi_5", "void-pay-5")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusVoided, status)

	call := srv.lastCall()
	assert.Equal(t, "/v1/payment_intents/pi_5/cancel", call.path)
	assert.Equal(t, "void-pay-5", call.idempotencyKey)
	assert.Equal(t, "abandoned", call.form["cancellation_reason"])
}

func TestStripeGateway_VoidReportsCapturedIntent(t *testing.T) {
	srv, gw := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_6","object":"payment_intent","status":"succeeded"}`))
	})

	status, err := gw.Void(context.Background(), "pi_6", "void-pay-6")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, status)
	assert.Len(t, srv.calls, 1)
}
