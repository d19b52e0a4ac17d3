package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ отправляет сообщения, исчерпавшие попытки, в topic через producer.
func WithDLQ(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlqProducer = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithRetries задаёт число попыток обработки и паузу между ними.
func WithRetries(maxRetries int, delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		c.retryDelay = max(delay, 0)
	}
}

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer: consumer group с повторами и DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	dlqTopic    string
	maxRetries  int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewConsumer создаёт consumer группы groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:   group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlqTopic:   TopicDeadLetterQueue,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("consume failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Run читает до отмены ctx.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Stop()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Сообщение помечается, если обработано
// или ушло в DLQ; иначе offset не двигается до следующей сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			logger := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if err := c.handle(session.Context(), message); err != nil {
				logger.WithError(err).Error("message processing failed")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":   message.Topic,
			"attempt": attempt,
		}).Warn("message processing failed, retrying")
		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
		return fmt.Errorf("send to dlq: %w (handler: %w)", dlqErr, err)
	}
	c.logger.WithFields(log.Fields{
		"topic":  message.Topic,
		"offset": message.Offset,
	}).Info("message moved to DLQ")
	return nil
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, cause error) error {
	failedAt := c.now()
	letter := ConsumerDeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		Attempts:          c.maxRetries,
	}
	return c.dlqProducer.PublishEvent(c.dlqTopic, string(message.Key), letter,
		header(HeaderOriginalTopic, message.Topic),
		header(HeaderErrorMessage, cause.Error()),
		header(HeaderFailedAt, failedAt.Format(time.RFC3339)),
		header(HeaderRetryCount, fmt.Sprint(c.maxRetries)),
	)
}
