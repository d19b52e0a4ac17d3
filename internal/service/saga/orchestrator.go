// Package saga проводит заказ по шагам Reserve → Pay → Confirm и выполняет компенсации.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Orchestrator описывает управление сагой заказа.
type Orchestrator interface {
	// Execute продолжает сагу с текущего статуса заказа.
	Execute(ctx context.Context, orderID string, input PaymentInput) (domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	Refund(ctx context.Context, orderID string, amountMinor int64, reason string) (domain.Order, error)
	// AcceptPayment обрабатывает уведомление шлюза об оплате.
	AcceptPayment(ctx context.Context, gateway, externalID string) (domain.Order, error)
}

// PaymentInput: данные оплаты, которые не хранятся в заказе.
type PaymentInput struct {
	CardToken string
	CardBrand string
	Customer  domain.GatewayCustomer
	// IdempotencyKey для CreatePayment; если пустой, ключ строится по id заказа.
	IdempotencyKey string
}

// ConfirmHook вызывается после подтверждения заказа. Ошибка хука не откатывает заказ.
type ConfirmHook func(order domain.Order) error

// Option настраивает оркестратор.
type Option func(*orchestrator)

// WithMetrics включает метрики саги.
func WithMetrics(m *metrics.SagaMetrics) Option {
	return func(o *orchestrator) { o.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConfirmHook добавляет действие после подтверждения.
func WithConfirmHook(hook ConfirmHook) Option {
	return func(o *orchestrator) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

const (
	maxStatusRetries = 3
	baseRetryDelay   = 10 * time.Millisecond
)

type orchestrator struct {
	repos     domain.Repositories
	uow       domain.UnitOfWork
	inventory domain.InventoryService
	gateways  domain.GatewayRegistry
	hooks     []ConfirmHook
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
	now       func() time.Time
}

// NewOrchestrator создаёт оркестратор. repos используются для чтения, записи идут через uow.
func NewOrchestrator(
	repos domain.Repositories,
	uow domain.UnitOfWork,
	inventory domain.InventoryService,
	gateways domain.GatewayRegistry,
	opts ...Option,
) Orchestrator {
	o := &orchestrator{
		repos:     repos,
		uow:       uow,
		inventory: inventory,
		gateways:  gateways,
		logger:    log.New().WithField("component", "saga"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute идемпотентен: конечные и подтверждённые заказы возвращаются без изменений.
// Временные ошибки возвращаются без компенсации, чтобы повтор продолжил с того же шага.
func (o *orchestrator) Execute(ctx context.Context, orderID string, input PaymentInput) (order domain.Order, err error) {
	start := time.Now()
	o.metrics.SagaStarted()
	outcome := metrics.SagaOutcomeFailed
	defer func() {
		if order.Status == domain.OrderStatusCanceled {
			outcome = metrics.SagaOutcomeCanceled
		}
		o.metrics.SagaFinished(outcome, time.Since(start))
	}()

	order, err = o.repos.Orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	switch order.Status {
	case domain.OrderStatusPending:
		if err := o.handleReserve(&order); err != nil {
			return order, err
		}
		fallthrough
	case domain.OrderStatusReserved:
		awaiting, err := o.handlePayment(ctx, &order, input)
		if err != nil {
			return order, err
		}
		if awaiting {
			outcome = metrics.SagaOutcomeAwaiting
			return order, nil
		}
		fallthrough
	case domain.OrderStatusPaid:
		if err := o.handleConfirm(&order); err != nil {
			return order, err
		}
		outcome = metrics.SagaOutcomeCompleted
	case domain.OrderStatusConfirmed:
		o.logger.WithField("order_id", order.ID).Debug("order already confirmed, skipping saga")
		outcome = metrics.SagaOutcomeCompleted
	default:
		return order, fmt.Errorf("%w: order %s is %s", domain.ErrOrderInvalidState, order.ID, order.Status)
	}
	return order, nil
}

func (o *orchestrator) handleReserve(order *domain.Order) error {
	err := o.step(domain.SagaStepReserve, func() error {
		return o.inventory.Reserve(order.ID, order.Items)
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("reserve failed")
		if domain.IsBusiness(err) {
			// Резерв "всё или ничего": освобождать нечего.
			o.failOrder(order, err)
		}
		return err
	}
	return o.updateStatus(order, domain.OrderStatusReserved, "", nil)
}

// handlePayment создаёт платёж (или берёт уже созданный) и доводит его до списания.
// awaiting=true означает, что оплата придёт уведомлением шлюза.
func (o *orchestrator) handlePayment(ctx context.Context, order *domain.Order, input PaymentInput) (bool, error) {
	gw, err := o.gateways.Gateway(order.Gateway)
	if err != nil {
		o.compensate(order, err)
		return false, err
	}

	payment, err := o.repos.Payments.GetByOrder(order.ID)
	created := false
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		payment, err = o.createPayment(ctx, gw, order, input)
		if err != nil {
			return false, o.paymentFailure(order, err)
		}
		created = true
	case err != nil:
		return false, err
	}

	return o.settlePayment(ctx, gw, order, payment, !created)
}

func (o *orchestrator) createPayment(ctx context.Context, gw domain.PaymentGateway, order *domain.Order, input PaymentInput) (domain.Payment, error) {
	var (
		customerRef string
		result      domain.ChargeResult
	)
	err := o.step(domain.SagaStepPay, func() error {
		if input.Customer.Email != "" {
			ref, err := gw.CreateCustomer(ctx, input.Customer)
			if err != nil {
				return err
			}
			customerRef = ref
		}

		key := input.IdempotencyKey
		if key == "" {
			key = "order-" + order.ID
		}
		res, err := gw.CreatePayment(ctx, domain.ChargeRequest{
			OrderID:        order.ID,
			CustomerRef:    customerRef,
			Customer:       input.Customer,
			AmountMinor:    order.AmountMinor,
			Currency:       order.Currency,
			Method:         order.PaymentMethod,
			Installments:   order.Installments,
			CardToken:      input.CardToken,
			CardBrand:      input.CardBrand,
			Description:    "Pedido " + order.ID,
			IdempotencyKey: key,
		})
		result = res
		return err
	})
	if err != nil {
		return domain.Payment{}, err
	}

	now := o.now()
	payment := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Provider:    gw.Name(),
		ExternalID:  result.ExternalID,
		CustomerRef: customerRef,
		Method:      order.PaymentMethod,
		Status:      result.Status,
		AmountMinor: order.AmountMinor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	events := []domain.OutboxMessage{o.paymentEvent(domain.EventPaymentCreated, payment, "")}
	if payment.Status == domain.PaymentStatusPending {
		events = append(events, o.paymentEvent(domain.EventPaymentPending, payment, result.Instructions))
	}
	err = o.uow.Do(func(repos domain.Repositories) error {
		if err := repos.Payments.Create(payment); err != nil {
			return err
		}
		return o.enqueue(repos, events...)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	o.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"payment_id":  payment.ID,
		"external_id": payment.ExternalID,
		"status":      payment.Status,
	}).Info("payment created")
	return payment, nil
}

// settlePayment уточняет статус у шлюза и применяет его к заказу.
func (o *orchestrator) settlePayment(ctx context.Context, gw domain.PaymentGateway, order *domain.Order, payment domain.Payment, refreshPending bool) (bool, error) {
	previous := payment.Status
	if payment.Status == domain.PaymentStatusAuthorized || (payment.Status == domain.PaymentStatusPending && refreshPending) {
		var result domain.ChargeResult
		err := o.step(domain.SagaStepAccept, func() error {
			res, err := gw.AcceptPayment(ctx, payment.ExternalID)
			result = res
			return err
		})
		if err != nil {
			return false, o.paymentFailure(order, err)
		}
		payment.Status = result.Status
		payment.UpdatedAt = o.now()
	}

	savePayment := func(repos domain.Repositories) error {
		if payment.Status == previous {
			return nil
		}
		return repos.Payments.Save(payment)
	}

	switch payment.Status {
	case domain.PaymentStatusCaptured:
		return false, o.updateStatus(order, domain.OrderStatusPaid, "", savePayment,
			o.paymentEvent(domain.EventPaymentCaptured, payment, ""))
	case domain.PaymentStatusPending:
		if err := o.uow.Do(savePayment); err != nil {
			return false, err
		}
		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"method":   payment.Method,
		}).Info("awaiting payment confirmation")
		return true, nil
	case domain.PaymentStatusFailed:
		if err := o.uow.Do(savePayment); err != nil {
			return false, err
		}
		declined := fmt.Errorf("%w: %s payment %s failed", domain.ErrPaymentDeclined, payment.Provider, payment.ExternalID)
		o.compensate(order, declined)
		return false, declined
	default:
		return false, fmt.Errorf("%w: payment %s is %s", domain.ErrPaymentIndeterminate, payment.ExternalID, payment.Status)
	}
}

// paymentFailure компенсирует заказ только при окончательном отказе.
func (o *orchestrator) paymentFailure(order *domain.Order, err error) error {
	o.logger.WithError(err).WithField("order_id", order.ID).Warn("payment failed")
	if domain.IsBusiness(err) {
		o.compensate(order, err)
	}
	return err
}

func (o *orchestrator) handleConfirm(order *domain.Order) error {
	err := o.step(domain.SagaStepConfirm, func() error {
		return o.updateStatus(order, domain.OrderStatusConfirmed, "", nil)
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("confirm failed")
		return err
	}
	for _, hook := range o.hooks {
		if err := hook(*order); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Warn("confirm hook failed")
		}
	}
	o.logger.WithField("order_id", order.ID).Info("saga completed successfully")
	return nil
}

// Cancel отменяет заказ: освобождает резерв, отменяет неоплаченный платёж и возвращает
// списанные деньги. Повторный Cancel отменённого заказа дочищает платёж, если он остался.
func (o *orchestrator) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	order, err := o.repos.Orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	switch order.Status {
	case domain.OrderStatusCanceled:
		return order, o.reconcileCanceled(ctx, order)
	case domain.OrderStatusRefunded:
		o.logger.WithField("order_id", order.ID).Debug("order already refunded")
		return order, nil
	}
	if reason == "" {
		reason = "canceled by request"
	}

	payment, err := o.repos.Payments.GetByOrder(order.ID)
	hasPayment := err == nil
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return order, err
	}

	var (
		event   string
		changed bool
	)
	if hasPayment {
		previous := payment
		event, err = o.releasePayment(ctx, &payment)
		changed = payment.Status != previous.Status || payment.RefundedMinor != previous.RefundedMinor
		switch {
		case err == nil:
		case payment.Status.Voidable():
			// Деньги не списаны: заказ отменяется, а платёж дочистит уведомление шлюза или повторный Cancel.
			o.logger.WithError(err).WithField("order_id", order.ID).Warn("void failed, canceling order anyway")
		default:
			return order, err
		}
	}
	if order.Status != domain.OrderStatusPending {
		o.releaseInventory(&order)
	}

	var extra func(domain.Repositories) error
	events := []domain.OutboxMessage{o.orderEvent(domain.EventOrderCanceled, order, reason)}
	if changed {
		extra = func(repos domain.Repositories) error { return repos.Payments.Save(payment) }
	}
	if event != "" {
		events = append(events, o.paymentEvent(event, payment, ""))
	}
	if err := o.updateStatus(&order, domain.OrderStatusCanceled, reason, extra, events...); err != nil {
		return order, err
	}
	o.metrics.Outcome(metrics.SagaOutcomeCanceled)
	return order, nil
}

// releasePayment отменяет неоплаченный платёж или возвращает списанный остаток.
// Пустое событие означает, что платёж не изменился.
func (o *orchestrator) releasePayment(ctx context.Context, payment *domain.Payment) (string, error) {
	if payment.Status.Voidable() {
		status, err := o.voidPayment(ctx, payment)
		if err != nil {
			return "", err
		}
		if status != domain.PaymentStatusCaptured {
			payment.Status = status
			payment.UpdatedAt = o.now()
			if status == domain.PaymentStatusVoided {
				return domain.EventPaymentVoided, nil
			}
			return "", nil
		}
		// Покупатель успел оплатить: списанное возвращаем.
		payment.Status = domain.PaymentStatusCaptured
		payment.UpdatedAt = o.now()
	}
	refundable := payment.RefundableMinor()
	if refundable <= 0 {
		return "", nil
	}
	if err := o.refundPayment(ctx, payment, refundable); err != nil {
		return "", err
	}
	return domain.EventPaymentRefunded, nil
}

func (o *orchestrator) voidPayment(ctx context.Context, payment *domain.Payment) (domain.PaymentStatus, error) {
	gw, err := o.gateways.Gateway(payment.Provider)
	if err != nil {
		return "", err
	}
	var status domain.PaymentStatus
	err = o.step(domain.SagaStepVoid, func() error {
		var voidErr error
		status, voidErr = gw.Void(ctx, payment.ExternalID, "void-"+payment.ID)
		return voidErr
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("void failed")
		return "", err
	}
	return status, nil
}

// reconcileCanceled приводит платёж отменённого заказа в конечное состояние:
// оплату, пришедшую после отмены, возвращает покупателю.
func (o *orchestrator) reconcileCanceled(ctx context.Context, order domain.Order) error {
	payment, err := o.repos.Payments.GetByOrder(order.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !payment.Status.Voidable() && payment.RefundableMinor() == 0 {
		return nil
	}

	previous := payment.Status
	event, err := o.releasePayment(ctx, &payment)
	if err != nil {
		return err
	}
	if event == "" && payment.Status == previous {
		return nil
	}
	o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"payment":  payment.ID,
		"status":   payment.Status,
	}).Info("payment of canceled order reconciled")
	return o.uow.Do(func(repos domain.Repositories) error {
		if err := repos.Payments.Save(payment); err != nil {
			return err
		}
		if event == "" {
			return nil
		}
		return o.enqueue(repos, o.paymentEvent(event, payment, ""))
	})
}

// Refund возвращает amountMinor (0 означает весь остаток). Полный возврат переводит заказ в refunded.
func (o *orchestrator) Refund(ctx context.Context, orderID string, amountMinor int64, reason string) (domain.Order, error) {
	order, err := o.repos.Orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusRefunded {
		o.logger.WithField("order_id", order.ID).Debug("order already refunded")
		return order, nil
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusConfirmed {
		return order, fmt.Errorf("%w: refund of %s order", domain.ErrOrderInvalidState, order.Status)
	}

	payment, err := o.repos.Payments.GetByOrder(order.ID)
	if err != nil {
		return order, err
	}
	refundable := payment.RefundableMinor()
	if amountMinor <= 0 {
		amountMinor = refundable
	}
	if amountMinor <= 0 || amountMinor > refundable {
		return order, fmt.Errorf("%w: requested %d, refundable %d", domain.ErrRefundAmountInvalid, amountMinor, refundable)
	}

	if err := o.refundPayment(ctx, &payment, amountMinor); err != nil {
		return order, err
	}
	savePayment := func(repos domain.Repositories) error { return repos.Payments.Save(payment) }
	refundEvent := o.paymentEvent(domain.EventPaymentRefunded, payment, "")

	if payment.Status != domain.PaymentStatusRefunded {
		// Частичный возврат не меняет статус заказа.
		err := o.uow.Do(func(repos domain.Repositories) error {
			if err := savePayment(repos); err != nil {
				return err
			}
			return o.enqueue(repos, refundEvent)
		})
		return order, err
	}

	o.releaseInventory(&order)
	if err := o.updateStatus(&order, domain.OrderStatusRefunded, reason, savePayment,
		refundEvent, o.orderEvent(domain.EventOrderRefunded, order, reason)); err != nil {
		return order, err
	}
	o.metrics.Outcome(metrics.SagaOutcomeRefunded)
	return order, nil
}

// AcceptPayment завершает заказ, ожидавший асинхронной оплаты. Повторные уведомления безопасны.
func (o *orchestrator) AcceptPayment(ctx context.Context, gateway, externalID string) (domain.Order, error) {
	payment, err := o.repos.Payments.GetByExternalID(gateway, externalID)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := o.repos.Orders.Get(payment.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	switch order.Status {
	case domain.OrderStatusCanceled:
		return order, o.reconcileCanceled(ctx, order)
	case domain.OrderStatusConfirmed, domain.OrderStatusRefunded:
		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Debug("payment notification for settled order")
		return order, nil
	case domain.OrderStatusReserved:
		gw, err := o.gateways.Gateway(payment.Provider)
		if err != nil {
			return order, err
		}
		awaiting, err := o.settlePayment(ctx, gw, &order, payment, true)
		if err != nil || awaiting {
			return order, err
		}
	case domain.OrderStatusPaid:
	default:
		return order, fmt.Errorf("%w: payment notification for %s order", domain.ErrOrderInvalidState, order.Status)
	}

	if err := o.handleConfirm(&order); err != nil {
		return order, err
	}
	o.metrics.Outcome(metrics.SagaOutcomeCompleted)
	return order, nil
}

func (o *orchestrator) refundPayment(ctx context.Context, payment *domain.Payment, amountMinor int64) error {
	gw, err := o.gateways.Gateway(payment.Provider)
	if err != nil {
		return err
	}
	// Ключ зависит от накопленной суммы: повтор того же возврата не удваивает его.
	key := fmt.Sprintf("refund-%s-%d", payment.ID, payment.RefundedMinor+amountMinor)
	err = o.step(domain.SagaStepRefund, func() error {
		status, err := gw.Refund(ctx, payment.ExternalID, amountMinor, key)
		if err == nil && status != domain.PaymentStatusRefunded {
			err = fmt.Errorf("%w: refund status %s", domain.ErrPaymentIndeterminate, status)
		}
		return err
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("refund failed")
		return err
	}
	payment.RefundedMinor += amountMinor
	if payment.RefundedMinor >= payment.AmountMinor {
		payment.Status = domain.PaymentStatusRefunded
	}
	payment.UpdatedAt = o.now()
	return nil
}

// compensate освобождает резерв и отменяет заказ после окончательного отказа.
func (o *orchestrator) compensate(order *domain.Order, cause error) {
	if order.Status == domain.OrderStatusReserved {
		o.releaseInventory(order)
	}
	o.failOrder(order, cause)
}

func (o *orchestrator) failOrder(order *domain.Order, cause error) {
	reason := cause.Error()
	if err := o.updateStatus(order, domain.OrderStatusCanceled, reason, nil,
		o.orderEvent(domain.EventOrderCanceled, *order, reason)); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("cancel after failure not persisted")
	}
}

func (o *orchestrator) releaseInventory(order *domain.Order) {
	err := o.step(domain.SagaStepRelease, func() error {
		return o.inventory.Release(order.ID, order.Items)
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("release failed")
	}
}

// updateStatus меняет статус заказа в одной транзакции с timeline, outbox и extra.
// При конфликте версий перечитывает заказ и повторяет с экспоненциальной задержкой.
func (o *orchestrator) updateStatus(
	order *domain.Order,
	newStatus domain.OrderStatus,
	reason string,
	extra func(domain.Repositories) error,
	events ...domain.OutboxMessage,
) error {
	if order.Status == newStatus {
		return nil
	}

	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		previous := *order
		order.Status = newStatus
		order.UpdatedAt = o.now()

		err := o.uow.Do(func(repos domain.Repositories) error {
			if err := repos.Orders.Save(*order); err != nil {
				return err
			}
			if extra != nil {
				if err := extra(repos); err != nil {
					return err
				}
			}
			if err := repos.Timeline.Append(domain.TimelineEvent{
				OrderID:  order.ID,
				Type:     domain.EventOrderStatusChanged,
				Status:   newStatus,
				Reason:   reason,
				Occurred: order.UpdatedAt,
			}); err != nil {
				return err
			}
			status := o.orderEvent(domain.EventOrderStatusChanged, *order, reason)
			return o.enqueue(repos, append([]domain.OutboxMessage{status}, events...)...)
		})
		if err == nil {
			order.Version = previous.Version + 1
			o.metrics.TimelineEvent()
			return nil
		}

		*order = previous
		if !domain.IsVersionConflict(err) || attempt == maxStatusRetries-1 {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"status":   newStatus,
				"attempt":  attempt + 1,
			}).Error("failed to persist status")
			return err
		}

		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")
		fresh, loadErr := o.repos.Orders.Get(order.ID)
		if loadErr != nil {
			return loadErr
		}
		if fresh.Status == newStatus {
			*order = fresh
			return nil
		}
		if fresh.Status != previous.Status {
			*order = fresh
			return fmt.Errorf("%w: order %s moved to %s concurrently", domain.ErrOrderInvalidState, order.ID, fresh.Status)
		}
		*order = fresh
		time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrOrderVersionConflict
}

func (o *orchestrator) enqueue(repos domain.Repositories, events ...domain.OutboxMessage) error {
	for _, msg := range events {
		if msg.EventType == "" {
			continue
		}
		if _, err := repos.Outbox.Enqueue(msg); err != nil {
			return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
		}
		o.metrics.OutboxEvent()
	}
	return nil
}

func (o *orchestrator) orderEvent(eventType string, order domain.Order, reason string) domain.OutboxMessage {
	payload := map[string]any{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"status":       order.Status,
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
		"ts":           o.now().Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return o.message(order.ID, eventType, payload)
}

func (o *orchestrator) paymentEvent(eventType string, payment domain.Payment, instructions string) domain.OutboxMessage {
	payload := map[string]any{
		"order_id":       payment.OrderID,
		"payment_id":     payment.ID,
		"provider":       payment.Provider,
		"external_id":    payment.ExternalID,
		"method":         payment.Method,
		"status":         payment.Status,
		"amount_minor":   payment.AmountMinor,
		"refunded_minor": payment.RefundedMinor,
		"ts":             o.now().Format(time.RFC3339Nano),
	}
	if instructions != "" {
		payload["instructions"] = instructions
	}
	return o.message(payment.OrderID, eventType, payload)
}

func (o *orchestrator) message(orderID, eventType string, payload map[string]any) domain.OutboxMessage {
	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, orderID, eventType, payload)
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return domain.OutboxMessage{}
	}
	return msg
}

func (o *orchestrator) step(step domain.SagaStep, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.StepDuration(string(step), err, time.Since(start))
	return err
}

var _ Orchestrator = (*orchestrator)(nil)
