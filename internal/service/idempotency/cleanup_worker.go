package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт период очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт размер одного удаления.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// CleanupWorker периодически удаляет записи с истёкшим TTL.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.CleanupMetrics
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-cleanup"),
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run чистит хранилище каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) error {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup disabled: repository not configured")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.cleanup(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}
	w.metrics.Run(deleted, err)
	if err != nil {
		w.logger.WithError(err).Warn("idempotency cleanup failed")
		return
	}
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency records removed")
	}
}

// DeleteExpired удаляет записи с ttl <= before порциями batchSize и возвращает их число.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		w.metrics.Deleted(deleted)
		if deleted < w.batchSize {
			return total, nil
		}
	}
}
