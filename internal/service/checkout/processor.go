// Package checkout обрабатывает задачи checkout: пересчёт корзины, создание заказа и запуск саги.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/freight"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
)

// ProductSource отдаёт товары, доступные для продажи.
type ProductSource interface {
	SellableProduct(id string) (domain.Product, error)
}

// StockChecker проверяет остатки без списания.
type StockChecker interface {
	CheckAvailable(lines []domain.InventoryLine) error
}

// CouponPricer пересчитывает скидку по купону. Купон гасится хуком подтверждения саги.
type CouponPricer interface {
	Reprice(code string, subtotalMinor int64) (int64, error)
}

// Deps: зависимости процессора. Lease ограничивает время, на которое попытка
// захватывает задачу; 0 означает domain.DefaultCheckoutLease.
type Deps struct {
	Repos     domain.Repositories
	UoW       domain.UnitOfWork
	Catalog   ProductSource
	Stock     StockChecker
	Coupons   CouponPricer
	Freight   domain.FreightQuoter
	Saga      saga.Orchestrator
	Fees      payment.FeePolicy
	Policy    RetryPolicy
	Lease     time.Duration
	OriginZip string
	Metrics   *metrics.CheckoutMetrics
	Logger    *log.Entry
}

// Processor выполняет одну попытку задачи checkout.
type Processor struct {
	repos     domain.Repositories
	uow       domain.UnitOfWork
	catalog   ProductSource
	stock     StockChecker
	coupons   CouponPricer
	freight   domain.FreightQuoter
	saga      saga.Orchestrator
	fees      payment.FeePolicy
	policy    RetryPolicy
	lease     time.Duration
	originZip string
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
	now       func() time.Time
}

// NewProcessor собирает процессор; нулевая политика заменяется DefaultRetryPolicy.
func NewProcessor(deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	policy := deps.Policy
	if policy.InitialDelay <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Processor{
		repos:     deps.Repos,
		uow:       deps.UoW,
		catalog:   deps.Catalog,
		stock:     deps.Stock,
		coupons:   deps.Coupons,
		freight:   deps.Freight,
		saga:      deps.Saga,
		fees:      deps.Fees,
		policy:    policy,
		lease:     deps.Lease,
		originZip: deps.OriginZip,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process захватывает задачу и выполняет попытку. Задачу, которую нельзя захватить
// (завершена, не наступил срок, уже в работе), пропускает без ошибки.
// Ошибка возвращается, только если не удалось сохранить состояние задачи.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	job, err := p.repos.Jobs.Get(jobID)
	if err != nil {
		return err
	}

	now := p.now()
	logger := p.logger.WithFields(log.Fields{"job_id": job.ID, "cart_uuid": job.CartUUID})
	if !job.Due(now) {
		logger.WithField("status", job.Status).Debug("checkout job not claimable, skipping")
		p.metrics.Processed(metrics.CheckoutResultSkipped, job.Attempts, time.Since(start))
		return nil
	}

	lag := now.Sub(job.NextRunAt)
	if job.Status == domain.CheckoutJobProcessing {
		logger.WithField("attempts", job.Attempts).Warn("checkout job lease expired, reclaiming")
	}
	if err := job.Claim(now, p.lease); err != nil {
		return err
	}
	if err := p.uow.Do(func(repos domain.Repositories) error { return repos.Jobs.Save(job) }); err != nil {
		if errors.Is(err, domain.ErrCheckoutJobConflict) {
			logger.Debug("checkout job claimed by another worker")
			p.metrics.Processed(metrics.CheckoutResultSkipped, job.Attempts, time.Since(start))
			return nil
		}
		return err
	}
	job.Version++
	p.metrics.Claimed(lag)
	logger = logger.WithField("attempt", job.Attempts)

	order, runErr := p.run(ctx, &job)
	result, err := p.finish(ctx, &job, order, runErr)
	if err != nil {
		logger.WithError(err).Error("failed to persist checkout job result")
		return err
	}

	entry := logger.WithFields(log.Fields{"result": result, "order_id": job.OrderID})
	switch result {
	case metrics.CheckoutResultSucceeded:
		entry.Info("checkout job succeeded")
	case metrics.CheckoutResultRescheduled:
		entry.WithError(runErr).WithField("next_run_at", job.NextRunAt).Warn("checkout job rescheduled")
	default:
		entry.WithError(runErr).Warn("checkout job failed")
	}
	p.metrics.Processed(result, job.Attempts, time.Since(start))
	return nil
}

func (p *Processor) run(ctx context.Context, job *domain.CheckoutJob) (domain.Order, error) {
	order, err := p.ensureOrder(ctx, job)
	if err != nil {
		return order, err
	}

	cart := job.Cart
	input := saga.PaymentInput{IdempotencyKey: "checkout-" + job.ID}
	if cart.Customer != nil {
		input.Customer = domain.GatewayCustomer{
			ID:       order.CustomerID,
			Email:    cart.Customer.Email,
			Name:     cart.Customer.Name,
			Document: cart.Customer.Document,
			Phone:    cart.Customer.Phone,
		}
	}
	if cart.Payment != nil {
		input.CardToken = cart.Payment.CardToken
		input.CardBrand = cart.Payment.CardBrand
	}
	return p.saga.Execute(ctx, order.ID, input)
}

// ensureOrder создаёт заказ один раз на задачу; повторные попытки берут сохранённый.
func (p *Processor) ensureOrder(ctx context.Context, job *domain.CheckoutJob) (domain.Order, error) {
	if job.OrderID != "" {
		return p.repos.Orders.Get(job.OrderID)
	}

	order, err := p.price(ctx, *job)
	if err != nil {
		return domain.Order{}, err
	}

	created, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, domain.EventOrderCreated, map[string]any{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"cart_uuid":    order.CartUUID,
		"job_id":       job.ID,
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return domain.Order{}, err
	}

	updated := *job
	updated.OrderID = order.ID
	err = p.uow.Do(func(repos domain.Repositories) error {
		if err := repos.Orders.Create(order); err != nil {
			return err
		}
		if err := repos.Timeline.Append(domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.EventOrderCreated,
			Status:   order.Status,
			Occurred: order.CreatedAt,
		}); err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(created); err != nil {
			return err
		}
		return repos.Jobs.Save(updated)
	})
	if err != nil {
		return domain.Order{}, err
	}
	updated.Version++
	*job = updated
	return order, nil
}

// price пересчитывает снимок корзины по текущему каталогу, складу, купону и доставке.
func (p *Processor) price(ctx context.Context, job domain.CheckoutJob) (domain.Order, error) {
	cart := job.Cart
	switch {
	case len(cart.Items) == 0:
		return domain.Order{}, domain.ErrCartEmpty
	case cart.Customer == nil, cart.Shipping == nil, cart.Payment == nil:
		return domain.Order{}, domain.ErrCartStage
	}
	if err := cart.Payment.Validate(); err != nil {
		return domain.Order{}, err
	}

	now := p.now()
	items := make([]domain.OrderItem, 0, len(cart.Items))
	priced := make([]domain.CartItem, 0, len(cart.Items))
	var subtotal int64
	for _, item := range cart.Items {
		product, err := p.catalog.SellableProduct(item.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		if product.Currency != "" && domain.NormalizeCurrency(product.Currency) != cart.Currency {
			return domain.Order{}, fmt.Errorf("product %s: %w", product.ID, domain.ErrCartCurrencyMismatch)
		}
		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  product.ID,
			SKU:        product.SKU,
			Name:       product.Name,
			Qty:        item.Qty,
			PriceMinor: product.PriceMinor,
			CreatedAt:  now,
		})
		priced = append(priced, domain.CartItem{
			ProductID:   product.ID,
			Qty:         item.Qty,
			PriceMinor:  product.PriceMinor,
			WeightGrams: product.WeightGrams,
			HeightCm:    product.HeightCm,
			WidthCm:     product.WidthCm,
			LengthCm:    product.LengthCm,
		})
		subtotal += int64(item.Qty) * product.PriceMinor
	}

	if err := p.stock.CheckAvailable(domain.LinesFromOrderItems(items)); err != nil {
		return domain.Order{}, err
	}

	discount, err := p.coupons.Reprice(cart.CouponCode, subtotal)
	if err != nil {
		return domain.Order{}, err
	}

	quote, err := p.freight.Quote(ctx, domain.FreightRequest{
		OriginZip:      p.originZip,
		DestinationZip: cart.Shipping.Address.ZipCode,
		ServiceCode:    cart.Shipping.ServiceCode,
		Package:        freight.PackageMetrics(priced),
		DeclaredMinor:  subtotal - discount,
	})
	if err != nil {
		return domain.Order{}, err
	}

	pay := cart.Payment
	fee := p.fees.Fee(pay.Method, pay.Installments, subtotal-discount+quote.PriceMinor)
	customerID := cart.Customer.ID
	if customerID == "" {
		customerID = strings.ToLower(cart.Customer.Email)
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		CustomerEmail: cart.Customer.Email,
		CartUUID:      cart.UUID,
		CheckoutJobID: job.ID,
		Status:        domain.OrderStatusPending,
		Currency:      cart.Currency,
		SubtotalMinor: subtotal,
		DiscountMinor: discount,
		FreightMinor:  quote.PriceMinor,
		FeeMinor:      fee,
		AmountMinor:   subtotal - discount + quote.PriceMinor + fee,
		CouponCode:    cart.CouponCode,
		Gateway:       strings.ToLower(pay.Gateway),
		PaymentMethod: pay.Method,
		Installments:  max(pay.Installments, 1),
		Shipping:      cart.Shipping.Address,
		ShippingCode:  quote.ServiceCode,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	return order, nil
}

// finish применяет результат попытки к задаче и сохраняет её вместе с событием checkout.
func (p *Processor) finish(ctx context.Context, job *domain.CheckoutJob, order domain.Order, runErr error) (string, error) {
	now := p.now()
	updated := *job

	var (
		result string
		event  string
	)
	switch {
	case runErr == nil:
		if err := updated.Succeed(order.ID, now); err != nil {
			return "", err
		}
		result, event = metrics.CheckoutResultSucceeded, domain.EventCheckoutSucceeded
	case !permanent(runErr) && updated.AttemptsLeft():
		if err := updated.Reschedule(runErr, p.policy.Delay(updated.Attempts), now); err != nil {
			return "", err
		}
		result = metrics.CheckoutResultRescheduled
	default:
		p.abandon(ctx, order, runErr)
		if err := updated.Fail(runErr, now); err != nil {
			return "", err
		}
		result, event = metrics.CheckoutResultFailed, domain.EventCheckoutFailed
	}

	err := p.uow.Do(func(repos domain.Repositories) error {
		if err := repos.Jobs.Save(updated); err != nil {
			return err
		}
		if event == "" {
			return nil
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateCheckoutJob, updated.ID, event, domain.CheckoutEventPayload{
			JobID:    updated.ID,
			CartUUID: updated.CartUUID,
			OrderID:  updated.OrderID,
			Error:    updated.LastError,
			TS:       now,
		})
		if err != nil {
			return err
		}
		_, err = repos.Outbox.Enqueue(msg)
		return err
	})
	if err != nil {
		return "", err
	}
	updated.Version++
	*job = updated
	return result, nil
}

// abandon отменяет заказ окончательно проваленной задачи: резерв освобождается, оплата возвращается.
func (p *Processor) abandon(ctx context.Context, order domain.Order, cause error) {
	if order.ID == "" || order.Status.Final() {
		return
	}
	if _, err := p.saga.Cancel(ctx, order.ID, "checkout failed: "+cause.Error()); err != nil {
		p.logger.WithError(err).WithField("order_id", order.ID).Error("cancel of abandoned order failed")
	}
}
