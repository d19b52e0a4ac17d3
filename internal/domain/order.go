package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, но резервирование и оплата ещё не выполнены.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusReserved: товары зарезервированы на складе, оплата ещё не подтверждена.
	OrderStatusReserved OrderStatus = "reserved"
	// OrderStatusPaid: оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusConfirmed: заказ финализирован и готов к отгрузке.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCanceled: заказ отменён до завершения цикла.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusRefunded: оплата полностью возвращена клиенту.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Final сообщает, что заказ больше не меняет статус.
func (s OrderStatus) Final() bool {
	return s == OrderStatusCanceled || s == OrderStatusRefunded
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID        string
	ProductID string
	// SKU: внешний идентификатор товара.
	SKU  string
	Name string
	// Qty: количество единиц товара.
	Qty int32
	// PriceMinor: цена за единицу в центавах на момент checkout.
	PriceMinor int64
	CreatedAt  time.Time
}

// Order агрегирует состояние заказа, его позиции и итоговые суммы checkout.
type Order struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	CartUUID      string
	CheckoutJobID string
	Status        OrderStatus
	Currency      string
	SubtotalMinor int64
	DiscountMinor int64
	FreightMinor  int64
	FeeMinor      int64
	// AmountMinor: итог к оплате, subtotal − discount + freight + fee.
	AmountMinor   int64
	CouponCode    string
	Gateway       string
	PaymentMethod PaymentMethod
	Installments  int
	Shipping      ShippingAddress
	ShippingCode  string
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем subtotal с позициями и итог с составляющими.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	} else if o.SubtotalMinor-o.DiscountMinor+o.FreightMinor+o.FeeMinor != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// GoodsAmountMinor: сумма без комиссии оплаты (база для взносов краудфандинга).
func (o *Order) GoodsAmountMinor() int64 {
	return o.SubtotalMinor - o.DiscountMinor
}
