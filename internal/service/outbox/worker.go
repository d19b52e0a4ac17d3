// Package outbox доставляет события transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// DeadLetter: конверт события, не доставленного после всех попыток.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

// Message восстанавливает исходное outbox-сообщение.
func (d DeadLetter) Message() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithMetrics подключает метрики outbox.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithPollInterval задаёт период опроса.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер выборки.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события за цикл.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт базовую задержку backoff; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = max(delay, 0) }
}

// Worker публикует pending-сообщения outbox и помечает их sent или failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.OutboxMetrics
	logger    *log.Entry

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: repository or publisher not configured")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну выборку и возвращает число доставленных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklog()

	events, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		logger := w.logger.WithFields(log.Fields{
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		})

		if err := w.publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.WithError(err).Error("outbox publish failed after retries")
			w.metrics.Attempt(metrics.OutboxResultFailed)
			w.deadLetter(event, err, logger)
			if err := w.repo.MarkFailed(event.ID); err != nil {
				logger.WithError(err).Warn("failed to mark outbox message failed")
			}
			continue
		}

		if err := w.repo.MarkSent(event.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox message sent")
			continue
		}
		sent++
	}
	return sent
}

func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(event); lastErr == nil {
			w.metrics.Attempt(metrics.OutboxResultSent)
			return nil
		}
		w.metrics.Attempt(metrics.OutboxResultRetry)
		if attempt == w.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

// backoff: base, 2·base, 4·base, ... с защитой от переполнения.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	const ceiling = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) deadLetter(event domain.OutboxMessage, cause error, logger *log.Entry) {
	if w.dlq == nil {
		return
	}
	payload, err := json.Marshal(DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishError:  cause.Error(),
		FailedAt:      w.now(),
	})
	if err == nil {
		err = w.dlq.Publish(domain.OutboxMessage{
			ID:            event.ID,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			EventType:     event.EventType,
			Payload:       payload,
		})
	}
	if err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		w.metrics.Attempt(metrics.OutboxResultDLQFailed)
		return
	}
	w.metrics.Attempt(metrics.OutboxResultDLQ)
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.Backlog(stats.PendingCount, age)
}
