package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultLockNamespace = "storefront:lock:"

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker: SET NX PX блокировка. Токен экземпляра не даёт снять чужую блокировку после истечения TTL.
type Locker struct {
	client    redis.UniversalClient
	namespace string
	token     string
}

// NewLocker создаёт Locker с уникальным токеном процесса.
func NewLocker(client redis.UniversalClient, namespace string) *Locker {
	if namespace == "" {
		namespace = defaultLockNamespace
	}
	return &Locker{client: client, namespace: namespace, token: uuid.NewString()}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.namespace+key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lock: %w", err)
	}
	return ok, nil
}

func (l *Locker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.namespace + key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	return nil
}

var _ domain.IdempotencyLocker = (*Locker)(nil)
