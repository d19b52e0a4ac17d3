package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий transactional outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCanceled      = "order.canceled"
	EventOrderRefunded      = "order.refunded"
	EventPaymentCreated     = "payment.created"
	EventPaymentPending     = "payment.pending"
	EventPaymentCaptured    = "payment.captured"
	EventPaymentRefunded    = "payment.refunded"
	EventPaymentVoided      = "payment.voided"
	EventCheckoutSucceeded  = "checkout.succeeded"
	EventCheckoutFailed     = "checkout.failed"
)

// Типы агрегатов outbox.
const (
	AggregateOrder       = "order"
	AggregateCheckoutJob = "checkout_job"
)

// Validate проверяет сообщение перед записью в outbox: известный агрегат, его id,
// тип события и JSON-тело (пустое допускается).
func (m OutboxMessage) Validate() error {
	switch {
	case m.AggregateType != AggregateOrder && m.AggregateType != AggregateCheckoutJob:
		return fmt.Errorf("%w: unknown aggregate %q", ErrOutboxMessageInvalid, m.AggregateType)
	case m.AggregateID == "":
		return fmt.Errorf("%w: %s id is required", ErrOutboxMessageInvalid, m.AggregateType)
	case m.EventType == "":
		return fmt.Errorf("%w: event type is required", ErrOutboxMessageInvalid)
	case len(m.Payload) > 0 && !json.Valid(m.Payload):
		return fmt.Errorf("%w: %s payload is not json", ErrOutboxMessageInvalid, m.EventType)
	}
	return nil
}

// CheckoutEventPayload: тело событий checkout.succeeded / checkout.failed.
type CheckoutEventPayload struct {
	JobID    string    `json:"job_id"`
	CartUUID string    `json:"cart_uuid"`
	OrderID  string    `json:"order_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	TS       time.Time `json:"ts"`
}

// NewOutboxMessage сериализует payload в JSON-сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
