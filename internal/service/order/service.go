// Package order отдаёт заказы и их таймлайн и проводит отмену, возврат и уведомления об оплате через сагу.
package order

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Details: заказ вместе с последним платежом (если он есть).
type Details struct {
	Order   domain.Order
	Payment *domain.Payment
}

// Service: операции над заказами.
type Service struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	timeline domain.TimelineRepository
	saga     saga.Orchestrator
	logger   *log.Entry
}

// NewService конструирует сервис заказов.
func NewService(repos domain.Repositories, orchestrator saga.Orchestrator, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &Service{
		orders:   repos.Orders,
		payments: repos.Payments,
		timeline: repos.Timeline,
		saga:     orchestrator,
		logger:   logger,
	}
}

// Get возвращает заказ и его платёж.
func (s *Service) Get(_ context.Context, orderID string) (Details, error) {
	order, err := s.load(orderID, "Get")
	if err != nil {
		return Details{}, err
	}

	details := Details{Order: order}
	payment, err := s.payments.GetByOrder(order.ID)
	switch {
	case err == nil:
		details.Payment = &payment
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return Details{}, err
	}
	return details, nil
}

// ListByCustomer возвращает заказы клиента от новых к старым.
func (s *Service) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	orders, err := s.orders.ListByCustomer(customerID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to list orders")
		return nil, err
	}
	return orders, nil
}

// Timeline возвращает шаги статусов заказа в порядке появления.
func (s *Service) Timeline(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.load(orderID, "Timeline"); err != nil {
		return nil, err
	}
	return s.timeline.List(orderID)
}

// Cancel отменяет заказ; оплаченный заказ возвращается через шлюз платежа.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, err := s.saga.Cancel(ctx, orderID, strings.TrimSpace(reason))
	if err != nil {
		s.logOperation("Cancel", orderID, err)
	}
	return order, err
}

// Refund возвращает amountMinor (0 означает весь остаток).
func (s *Service) Refund(ctx context.Context, orderID string, amountMinor int64, reason string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if amountMinor < 0 {
		return domain.Order{}, domain.ErrRefundAmountInvalid
	}
	order, err := s.saga.Refund(ctx, orderID, amountMinor, strings.TrimSpace(reason))
	if err != nil {
		s.logOperation("Refund", orderID, err)
	}
	return order, err
}

// AcceptPaymentNotification обрабатывает уведомление шлюза. Повторы безопасны.
func (s *Service) AcceptPaymentNotification(ctx context.Context, gateway, externalID string) (domain.Order, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	externalID = strings.TrimSpace(externalID)
	if gateway == "" || externalID == "" {
		return domain.Order{}, domain.ErrPaymentNotFound
	}
	order, err := s.saga.AcceptPayment(ctx, gateway, externalID)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"gateway":     gateway,
			"external_id": externalID,
		}).Warn("payment notification not applied")
		return order, err
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"gateway":  gateway,
	}).Info("payment notification applied")
	return order, nil
}

func (s *Service) load(orderID, operation string) (domain.Order, error) {
	order, err := s.orders.Get(strings.TrimSpace(orderID))
	if err != nil {
		s.logOperation(operation, orderID, err)
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) logOperation(operation, orderID string, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
	})
	if errors.Is(err, domain.ErrOrderNotFound) || domain.IsBusiness(err) {
		entry.Debug("order operation rejected")
		return
	}
	entry.Warn("order operation failed")
}
