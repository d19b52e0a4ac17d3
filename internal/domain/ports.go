package domain

import (
	"context"
	"time"
)

// InventoryService описывает работу со складским журналом.
type InventoryService interface {
	// Available возвращает текущий остаток товара.
	Available(productID string) (int32, error)
	// Reserve списывает товары под заказ (всё или ничего, идемпотентно).
	Reserve(orderID string, items []OrderItem) error
	// Release возвращает резерв по заказу (компенсация).
	Release(orderID string, items []OrderItem) error
}

// PaymentGateway: общий контракт платёжных провайдеров.
type PaymentGateway interface {
	// Name возвращает код провайдера (stripe, mercadopago, ...).
	Name() string
	// CreateCustomer регистрирует покупателя у провайдера и возвращает его ссылку.
	CreateCustomer(ctx context.Context, customer GatewayCustomer) (string, error)
	// CreatePayment создаёт платёж; повтор с тем же IdempotencyKey не создаёт дубль.
	CreatePayment(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	// AcceptPayment подтверждает (capture) авторизованный платёж или возвращает его текущий статус.
	AcceptPayment(ctx context.Context, externalID string) (ChargeResult, error)
	// Refund возвращает amountMinor по платежу.
	Refund(ctx context.Context, externalID string, amountMinor int64, idempotencyKey string) (PaymentStatus, error)
	// Void отменяет авторизацию или неоплаченный pix/boleto. Если деньги уже списаны,
	// возвращает PaymentStatusCaptured без ошибки: такой платёж надо возвращать через Refund.
	Void(ctx context.Context, externalID, idempotencyKey string) (PaymentStatus, error)
}

// GatewayRegistry выдаёт шлюз по имени провайдера.
type GatewayRegistry interface {
	Gateway(name string) (PaymentGateway, error)
}

// FreightQuoter считает стоимость доставки.
type FreightQuoter interface {
	Quote(ctx context.Context, req FreightRequest) (FreightQuote, error)
}

// CartStore хранит корзины (JSON в кэше по UUID).
type CartStore interface {
	Get(ctx context.Context, uuid string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, uuid string) error
}

// CheckoutDispatcher ставит задачу checkout в брокер для быстрой обработки.
type CheckoutDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// IdempotencyLocker: короткая распределённая блокировка ключа идемпотентности.
type IdempotencyLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит шаги статусов заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// SagaStep задаёт константы шагов для метрик/логов.
type SagaStep string

const (
	SagaStepValidate SagaStep = "validate"
	SagaStepReserve  SagaStep = "reserve"
	SagaStepPay      SagaStep = "pay"
	SagaStepAccept   SagaStep = "accept"
	SagaStepConfirm  SagaStep = "confirm"
	SagaStepRelease  SagaStep = "release"
	SagaStepCancel   SagaStep = "cancel"
	SagaStepRefund   SagaStep = "refund"
	SagaStepVoid     SagaStep = "void"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
