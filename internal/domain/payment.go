package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж инициирован, но не подтверждён (pix/boleto ждут оплаты).
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAuthorized: сумма успешно зарезервирована у провайдера.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusCaptured: деньги списаны в пользу мерчанта.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusRefunded: деньги возвращены клиенту полностью или частично.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusFailed: провайдер отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusVoided: авторизация или ожидающий платёж отменены до списания.
	PaymentStatusVoided PaymentStatus = "voided"
)

// Voidable сообщает, что платёж ещё не списан и его можно отменить у провайдера.
func (s PaymentStatus) Voidable() bool {
	return s == PaymentStatusPending || s == PaymentStatusAuthorized
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID          string
	OrderID     string
	Provider    string
	ExternalID  string // Может быть пустым, если провайдер не вернул идентификатор.
	CustomerRef string
	Method      PaymentMethod
	Status      PaymentStatus
	AmountMinor int64
	// RefundedMinor: сумма уже выполненных возвратов.
	RefundedMinor int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	switch {
	case p.OrderID == "":
		errs = append(errs, ErrOrderIDRequired)
	case p.Provider == "":
		errs = append(errs, ErrPaymentProviderRequired)
	case p.AmountMinor < 0:
		errs = append(errs, ErrPaymentAmountNegative)
	}

	return errs
}

// RefundableMinor: сколько ещё можно вернуть.
func (p *Payment) RefundableMinor() int64 {
	if p.Status != PaymentStatusCaptured && p.Status != PaymentStatusRefunded {
		return 0
	}
	left := p.AmountMinor - p.RefundedMinor
	if left < 0 {
		return 0
	}
	return left
}

// GatewayCustomer: данные покупателя для регистрации у провайдера.
type GatewayCustomer struct {
	ID       string
	Email    string
	Name     string
	Document string
	Phone    string
}

// ChargeRequest: запрос на создание платежа у провайдера.
type ChargeRequest struct {
	OrderID      string
	CustomerRef  string
	Customer     GatewayCustomer
	AmountMinor  int64
	Currency     string
	Method       PaymentMethod
	Installments int
	CardToken    string
	// CardBrand нужен провайдерам, которые требуют payment_method_id (visa, master, ...).
	CardBrand   string
	Description string
	// IdempotencyKey обеспечивает безопасный повтор create-запроса.
	IdempotencyKey string
}

// ChargeResult: ответ провайдера о состоянии платежа.
type ChargeResult struct {
	ExternalID string
	Status     PaymentStatus
	// Instructions: данные для оплаты асинхронными методами (pix copy-paste, ссылка на boleto).
	Instructions string
}
