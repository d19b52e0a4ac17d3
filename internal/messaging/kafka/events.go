package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics.
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// GroupCartCleanup: consumer group, удаляющая корзины после checkout.
const GroupCartCleanup = "storefront-cart-cleanup"

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope: JSON-конверт события outbox в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   now,
	}
}

// Key возвращает ключ партиционирования: агрегат, иначе id события.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// ParseEnvelope разбирает конверт из сообщения Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope at %s/%d/%d has no event_type", message.Topic, message.Partition, message.Offset)
	}
	return env, nil
}

// ConsumerDeadLetter: сообщение, которое consumer не смог обработать.
type ConsumerDeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	Attempts          int       `json:"attempts"`
}
