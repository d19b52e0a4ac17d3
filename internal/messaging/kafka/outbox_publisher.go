package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения конвертом Envelope в один топик.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher; пустой topic: storefront.order.events.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish отправляет событие; тип события дублируется в заголовке для фильтрации без разбора JSON.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	env := NewEnvelope(event, p.now())
	return p.producer.PublishEvent(p.topic, env.Key(), env, header(HeaderEventType, env.EventType))
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
