package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartEntry struct {
	payload   []byte
	expiresAt time.Time
}

// CartStore хранит корзины как JSON с тем же скользящим TTL, что и Redis.
type CartStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cartEntry
	now   func() time.Time
}

// NewCartStore создаёт хранилище корзин; ttl <= 0 отключает истечение.
func NewCartStore(ttl time.Duration) *CartStore {
	return &CartStore{
		ttl:   ttl,
		items: make(map[string]cartEntry),
		now:   time.Now,
	}
}

func (s *CartStore) Get(_ context.Context, uuid string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[uuid]
	if !ok || s.expired(entry) {
		delete(s.items, uuid)
		return domain.Cart{}, domain.ErrCartNotFound
	}

	var cart domain.Cart
	if err := json.Unmarshal(entry.payload, &cart); err != nil {
		return domain.Cart{}, err
	}
	entry.expiresAt = s.deadline()
	s.items[uuid] = entry
	return cart, nil
}

func (s *CartStore) Save(_ context.Context, cart domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cart.UUID] = cartEntry{payload: payload, expiresAt: s.deadline()}
	return nil
}

func (s *CartStore) Delete(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, uuid)
	return nil
}

func (s *CartStore) deadline() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

func (s *CartStore) expired(entry cartEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

var _ domain.CartStore = (*CartStore)(nil)
