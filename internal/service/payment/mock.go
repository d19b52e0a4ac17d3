package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGatewayName: имя dev-шлюза.
const MockGatewayName = "mock"

type mockCharge struct {
	result   domain.ChargeResult
	amount   int64
	refunded int64
}

// MockGateway: конфигурируемый шлюз для разработки и тестов.
// Карта авторизуется, pix и boleto остаются pending до Settle.
type MockGateway struct {
	// CreateStatus, если задан, подменяет статус созданного платежа.
	CreateStatus domain.PaymentStatus
	CustomerErr  error
	CreateErr    error
	AcceptErr    error
	RefundErr    error
	VoidErr      error

	mu      sync.Mutex
	name    string
	charges map[string]*mockCharge
	byKey   map[string]string

	CustomerCalls int
	CreateCalls   int
	AcceptCalls   int
	RefundCalls   int
	VoidCalls     int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway(name string) *MockGateway {
	if name == "" {
		name = MockGatewayName
	}
	return &MockGateway{
		name:    name,
		charges: make(map[string]*mockCharge),
		byKey:   make(map[string]string),
	}
}

func (m *MockGateway) Name() string { return m.name }

// CreateCustomer возвращает предсказуемую ссылку на покупателя.
func (m *MockGateway) CreateCustomer(_ context.Context, customer domain.GatewayCustomer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CustomerCalls++
	if m.CustomerErr != nil {
		return "", m.CustomerErr
	}
	return "cus_" + m.name + "_" + customer.ID, nil
}

// CreatePayment создаёт платёж; повтор с тем же ключом возвращает прежний результат.
func (m *MockGateway) CreatePayment(_ context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.ChargeResult{}, m.CreateErr
	}
	if id, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return m.charges[id].result, nil
	}
	if !req.Method.Valid() {
		return domain.ChargeResult{}, domain.ErrPaymentMethodInvalid
	}

	id := "pay_" + uuid.NewString()
	result := domain.ChargeResult{ExternalID: id, Status: domain.PaymentStatusAuthorized}
	switch req.Method {
	case domain.PaymentMethodPix:
		result.Status = domain.PaymentStatusPending
		result.Instructions = "00020126pix-mock-" + id
	case domain.PaymentMethodBoleto:
		result.Status = domain.PaymentStatusPending
		result.Instructions = "https://boleto.mock/" + id
	}
	if m.CreateStatus != "" {
		result.Status = m.CreateStatus
	}

	m.charges[id] = &mockCharge{result: result, amount: req.AmountMinor}
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = id
	}
	return result, nil
}

// AcceptPayment списывает авторизованный платёж; остальные статусы возвращаются как есть.
func (m *MockGateway) AcceptPayment(_ context.Context, externalID string) (domain.ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AcceptCalls++
	if m.AcceptErr != nil {
		return domain.ChargeResult{}, m.AcceptErr
	}
	charge, ok := m.charges[externalID]
	if !ok {
		return domain.ChargeResult{}, domain.ErrPaymentNotFound
	}
	if charge.result.Status == domain.PaymentStatusAuthorized {
		charge.result.Status = domain.PaymentStatusCaptured
	}
	return charge.result, nil
}

// Refund возвращает часть или всю сумму списанного платежа.
func (m *MockGateway) Refund(_ context.Context, externalID string, amountMinor int64, _ string) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	if m.RefundErr != nil {
		return domain.PaymentStatusFailed, m.RefundErr
	}
	charge, ok := m.charges[externalID]
	if !ok {
		return domain.PaymentStatusFailed, domain.ErrPaymentNotFound
	}
	if charge.result.Status != domain.PaymentStatusCaptured && charge.result.Status != domain.PaymentStatusRefunded {
		return domain.PaymentStatusFailed, fmt.Errorf("%w: payment %s is %s", domain.ErrRefundAmountInvalid, externalID, charge.result.Status)
	}
	if charge.refunded+amountMinor > charge.amount {
		return domain.PaymentStatusFailed, domain.ErrRefundAmountInvalid
	}
	charge.refunded += amountMinor
	if charge.refunded == charge.amount {
		charge.result.Status = domain.PaymentStatusRefunded
	}
	return domain.PaymentStatusRefunded, nil
}

// Void отменяет неоплаченный платёж; списанный возвращается со статусом captured.
func (m *MockGateway) Void(_ context.Context, externalID, _ string) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VoidCalls++
	if m.VoidErr != nil {
		return "", m.VoidErr
	}
	charge, ok := m.charges[externalID]
	if !ok {
		return "", domain.ErrPaymentNotFound
	}
	if charge.result.Status.Voidable() {
		charge.result.Status = domain.PaymentStatusVoided
	}
	return charge.result.Status, nil
}

// Settle имитирует оплату pix/boleto покупателем.
func (m *MockGateway) Settle(externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	charge, ok := m.charges[externalID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if charge.result.Status == domain.PaymentStatusPending || charge.result.Status == domain.PaymentStatusAuthorized {
		charge.result.Status = domain.PaymentStatusCaptured
	}
	return nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
