package checkout

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// JobProcessor выполняет попытку задачи по id.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Scheduler опрашивает таблицу задач и обрабатывает созревшие пакетами
// с ограниченным параллелизмом. Dispatch даёт быстрый путь без ожидания опроса.
type Scheduler struct {
	jobs      domain.CheckoutJobRepository
	processor JobProcessor
	logger    *log.Entry

	interval       time.Duration
	batchSize      int
	maxParallelOps int

	queue chan string
	now   func() time.Time
}

// SchedulerOption настраивает планировщик.
type SchedulerOption func(*Scheduler)

// WithInterval задаёт период опроса.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize ограничивает число задач за один опрос.
func WithBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithParallelism ограничивает число одновременно обрабатываемых задач.
func WithParallelism(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxParallelOps = n
		}
	}
}

// WithSchedulerLogger задаёт логгер.
func WithSchedulerLogger(logger *log.Entry) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler создаёт планировщик задач checkout.
func NewScheduler(jobs domain.CheckoutJobRepository, processor JobProcessor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jobs:           jobs,
		processor:      processor,
		logger:         log.New().WithField("component", "checkout-scheduler"),
		interval:       time.Second,
		batchSize:      20,
		maxParallelOps: 8,
		queue:          make(chan string, 100),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch ставит задачу в локальную очередь. При переполненной очереди задачу
// подберёт ближайший опрос, поэтому ошибка не возвращается.
func (s *Scheduler) Dispatch(ctx context.Context, jobID string) error {
	select {
	case s.queue <- jobID:
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.logger.WithField("job_id", jobID).Warn("dispatch queue full, job left for polling")
	}
	return nil
}

// Run обрабатывает очередь и опрашивает таблицу до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval).Info("checkout scheduler started")
	defer s.logger.Info("checkout scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case jobID := <-s.queue:
			s.flush(ctx, s.drain(jobID))
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.WithError(err).Warn("checkout poll failed")
			}
		}
	}
}

// RunOnce обрабатывает один пакет созревших задач и возвращает его размер.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.jobs.ListDue(s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(due))
	for _, job := range due {
		ids = append(ids, job.ID)
	}
	s.flush(ctx, ids)
	return len(ids), nil
}

// drain собирает уже поставленные в очередь id, не дожидаясь новых.
func (s *Scheduler) drain(first string) []string {
	batch := []string{first}
	for len(batch) < s.batchSize {
		select {
		case id := <-s.queue:
			batch = append(batch, id)
		default:
			return batch
		}
	}
	return batch
}

func (s *Scheduler) flush(ctx context.Context, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	batch := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, id)
	}
	if len(batch) == 0 {
		return
	}

	s.logger.WithField("batch_size", len(batch)).Debug("processing checkout batch")
	s.processInParallel(len(batch), func(index int) {
		if err := s.processor.Process(ctx, batch[index]); err != nil {
			s.logger.WithError(err).WithField("job_id", batch[index]).Error("checkout job processing failed")
		}
	})
}

func (s *Scheduler) processInParallel(size int, processFn func(index int)) {
	limit := min(max(s.maxParallelOps, 1), size)

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for idx := 0; idx < size; idx++ {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }()
			processFn(index)
		}(idx)
	}
	wg.Wait()
}

var _ domain.CheckoutDispatcher = (*Scheduler)(nil)
