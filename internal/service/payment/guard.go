package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Guarded оборачивает шлюз предохранителем, метриками и логами вызовов.
type Guarded struct {
	next    domain.PaymentGateway
	breaker *CircuitBreaker
	metrics *metrics.GatewayMetrics
	logger  *log.Entry
}

// Guard создаёт обёртку; breaker и m могут быть nil.
func Guard(next domain.PaymentGateway, breaker *CircuitBreaker, m *metrics.GatewayMetrics, logger *log.Entry) *Guarded {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	return &Guarded{
		next:    next,
		breaker: breaker,
		metrics: m,
		logger:  logger.WithField("gateway", next.Name()),
	}
}

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) CreateCustomer(ctx context.Context, customer domain.GatewayCustomer) (ref string, err error) {
	err = g.call("create_customer", func() error {
		var callErr error
		ref, callErr = g.next.CreateCustomer(ctx, customer)
		return callErr
	})
	return ref, err
}

func (g *Guarded) CreatePayment(ctx context.Context, req domain.ChargeRequest) (res domain.ChargeResult, err error) {
	err = g.call("create_payment", func() error {
		var callErr error
		res, callErr = g.next.CreatePayment(ctx, req)
		return callErr
	})
	if err == nil {
		g.logger.WithFields(log.Fields{
			"order_id":    req.OrderID,
			"external_id": res.ExternalID,
			"status":      res.Status,
		}).Info("payment created")
	}
	return res, err
}

func (g *Guarded) AcceptPayment(ctx context.Context, externalID string) (res domain.ChargeResult, err error) {
	err = g.call("accept_payment", func() error {
		var callErr error
		res, callErr = g.next.AcceptPayment(ctx, externalID)
		return callErr
	})
	return res, err
}

func (g *Guarded) Refund(ctx context.Context, externalID string, amountMinor int64, idempotencyKey string) (status domain.PaymentStatus, err error) {
	err = g.call("refund", func() error {
		var callErr error
		status, callErr = g.next.Refund(ctx, externalID, amountMinor, idempotencyKey)
		return callErr
	})
	return status, err
}

func (g *Guarded) Void(ctx context.Context, externalID, idempotencyKey string) (status domain.PaymentStatus, err error) {
	err = g.call("void", func() error {
		var callErr error
		status, callErr = g.next.Void(ctx, externalID, idempotencyKey)
		return callErr
	})
	return status, err
}

func (g *Guarded) call(operation string, fn func() error) (err error) {
	defer g.metrics.Observe(g.next.Name(), operation, time.Now(), &err)

	if g.breaker != nil {
		err = g.breaker.Execute(g.next.Name()+"."+operation, fn)
	} else {
		err = fn()
	}
	if err != nil {
		entry := g.logger.WithField("operation", operation).WithError(err)
		if domain.IsBusiness(err) {
			entry.Info("gateway call rejected")
		} else {
			entry.Warn("gateway call failed")
		}
	}
	return err
}

var _ domain.PaymentGateway = (*Guarded)(nil)
