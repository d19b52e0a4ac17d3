package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	seq       int64
	status    outboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// outboxRepositoryInMemory: transactional outbox для режима без Postgres.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	seq     int64
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory outbox.
func NewOutboxRepository() domain.OutboxRepository {
	return newOutboxRepository()
}

func newOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	now := r.now()
	r.seq++
	r.records[msg.ID] = &outboxRecord{msg: msg, seq: r.seq, status: outboxPending, createdAt: now, updatedAt: now}
	return msg, nil
}

// PullPending отдаёт pending-сообщения в порядке постановки (FIFO).
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.mark(id, outboxSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.mark(id, outboxFailed)
}

func (r *outboxRepositoryInMemory) mark(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attempts++
	record.updatedAt = r.now()
	return nil
}

func (r *outboxRepositoryInMemory) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == outboxPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].seq < pending[j].seq
	})
	return pending
}

func (r *outboxRepositoryInMemory) snapshot() func() {
	r.mu.RLock()
	saved := make(map[string]*outboxRecord, len(r.records))
	for id, rec := range r.records {
		cp := *rec
		saved[id] = &cp
	}
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		r.records = saved
		r.mu.Unlock()
	}
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
