package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Locker: локальная замена Redis SETNX для одного процесса.
type Locker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewLocker создаёт пустой Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]time.Time), now: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, held := l.locks[key]; held && now.Before(until) {
		return false, nil
	}
	l.locks[key] = now.Add(ttl)
	return true, nil
}

func (l *Locker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}

var _ domain.IdempotencyLocker = (*Locker)(nil)
