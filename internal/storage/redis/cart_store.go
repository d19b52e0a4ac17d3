package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultCartNamespace = "storefront:cart:"

// CartStore хранит корзину как JSON под ключом namespace+uuid.
// Каждое чтение и запись продлевает TTL.
type CartStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewCartStore создаёт хранилище; ttl <= 0 хранит корзины без истечения.
func NewCartStore(client redis.UniversalClient, namespace string, ttl time.Duration) *CartStore {
	if namespace == "" {
		namespace = defaultCartNamespace
	}
	return &CartStore{client: client, namespace: namespace, ttl: ttl}
}

func (s *CartStore) Get(ctx context.Context, uuid string) (domain.Cart, error) {
	var (
		payload []byte
		err     error
	)
	if s.ttl > 0 {
		payload, err = s.client.GetEx(ctx, s.key(uuid), s.ttl).Bytes()
	} else {
		payload, err = s.client.Get(ctx, s.key(uuid)).Bytes()
	}
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", uuid, err)
	}
	return cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", cart.UUID, err)
	}
	if err := s.client.Set(ctx, s.key(cart.UUID), payload, s.expiration()).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, uuid string) error {
	if err := s.client.Del(ctx, s.key(uuid)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func (s *CartStore) key(uuid string) string {
	return s.namespace + uuid
}

func (s *CartStore) expiration() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	return s.ttl
}

var _ domain.CartStore = (*CartStore)(nil)
