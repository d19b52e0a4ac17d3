package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepositoryInMemory хранит шаги статусов заказов.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return newTimelineRepository()
}

func newTimelineRepository() *timelineRepositoryInMemory {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.events[event.OrderID], event)
	// Стабильная сортировка сохраняет порядок шагов с одинаковым временем.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.OrderID] = events
	return nil
}

func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent(nil), r.events[orderID]...), nil
}

func (r *timelineRepositoryInMemory) snapshot() func() {
	r.mu.RLock()
	saved := make(map[string][]domain.TimelineEvent, len(r.events))
	for id, events := range r.events {
		saved[id] = append([]domain.TimelineEvent(nil), events...)
	}
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		r.events = saved
		r.mu.Unlock()
	}
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
