// Package rabbitmq реализует очередь задач checkout, быстрый путь к обработчику в дополнение к планировщику.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultQueue: очередь задач checkout.
const DefaultQueue = "storefront.checkout.jobs"

// Channel: подмножество *amqp.Channel, используемое очередью.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Connection: соединение и канал с объявленной очередью.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial подключается к брокеру и открывает канал.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &Connection{conn: conn, channel: ch}, nil
}

// Channel возвращает канал соединения.
func (c *Connection) Channel() Channel { return c.channel }

// NewChannel открывает ещё один канал: consumer и publisher не делят один.
func (c *Connection) NewChannel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return ch, nil
}

// Ping возвращает amqp.ErrClosed после обрыва соединения.
func (c *Connection) Ping(context.Context) error {
	if c.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	return errors.Join(c.channel.Close(), c.conn.Close())
}

// Declare объявляет durable-очередь.
func Declare(ch Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

type jobMessage struct {
	JobID string `json:"job_id"`
}

// Publisher публикует id задач checkout.
type Publisher struct {
	mu      sync.Mutex
	channel Channel
	queue   string
}

// NewPublisher объявляет очередь и возвращает Publisher.
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if err := Declare(ch, queue); err != nil {
		return nil, err
	}
	return &Publisher{channel: ch, queue: queue}, nil
}

// Dispatch ставит задачу в очередь. Канал amqp не допускает параллельной публикации.
func (p *Publisher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal checkout job message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish checkout job %s: %w", jobID, err)
	}
	return nil
}

var _ domain.CheckoutDispatcher = (*Publisher)(nil)

// JobProcessor обрабатывает задачу checkout.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithPrefetch ограничивает число неподтверждённых сообщений.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает id задач и передаёт их обработчику.
type Consumer struct {
	channel   Channel
	queue     string
	processor JobProcessor
	prefetch  int
	logger    *log.Entry
}

// NewConsumer создаёт consumer очереди queue.
func NewConsumer(ch Channel, queue string, processor JobProcessor, opts ...ConsumerOption) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	c := &Consumer{
		channel:   ch,
		queue:     queue,
		processor: processor,
		prefetch:  8,
		logger:    log.WithField("component", "checkout-queue"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run читает очередь до отмены ctx или закрытия канала.
func (c *Consumer) Run(ctx context.Context) error {
	if err := Declare(c.channel, c.queue); err != nil {
		return err
	}
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.WithField("queue", c.queue).Info("checkout queue consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle подтверждает сообщение после обработки. Ошибка не возвращает сообщение в очередь:
// задача лежит в таблице, и планировщик подберёт её по next_run_at.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg jobMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
		c.logger.WithError(err).WithField("message_id", d.MessageId).Warn("drop malformed checkout message")
		c.settle(d.Nack(false, false))
		return
	}

	logger := c.logger.WithField("job_id", msg.JobID)
	if err := c.processor.Process(ctx, msg.JobID); err != nil {
		if errors.Is(err, domain.ErrCheckoutJobNotFound) {
			logger.Warn("checkout job from queue not found")
		} else {
			logger.WithError(err).Warn("checkout job processing failed, left for scheduler")
		}
		c.settle(d.Nack(false, false))
		return
	}
	c.settle(d.Ack(false))
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.WithError(err).Warn("failed to settle delivery")
	}
}
