// Package idempotency хранит ответы команд по Idempotency-Key и чистит просроченные записи.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultRecordTTL = 24 * time.Hour
	defaultLockTTL   = 30 * time.Second
)

// ErrInProgress: запрос с тем же ключом ещё обрабатывается.
var ErrInProgress = errors.New("request with the same idempotency key is in progress")

// RequestHash: sha256(method:path:body) в hex.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Response: сохранённый ответ для повтора.
type Response struct {
	Status int
	Body   []byte
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithRecordTTL задаёт срок хранения ответа.
func WithRecordTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.recordTTL = ttl
		}
	}
}

// WithLockTTL задаёт время жизни быстрой блокировки.
func WithLockTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.lockTTL = ttl
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard пропускает команду один раз на ключ. Locker (Redis SETNX) отсекает
// параллельные дубли до обращения к хранилищу; без него работает только репозиторий.
type Guard struct {
	repo      domain.IdempotencyRepository
	locker    domain.IdempotencyLocker
	recordTTL time.Duration
	lockTTL   time.Duration
	logger    *log.Entry
	now       func() time.Time
}

// NewGuard создаёт Guard; locker может быть nil.
func NewGuard(repo domain.IdempotencyRepository, locker domain.IdempotencyLocker, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:      repo,
		locker:    locker,
		recordTTL: defaultRecordTTL,
		lockTTL:   defaultLockTTL,
		logger:    log.WithField("component", "idempotency"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Begin занимает ключ. если replay != nil, запрос уже выполнен, нужно вернуть сохранённый ответ.
// Если replay == nil и err == nil, вызывающий обязан завершить запрос через Finish.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (replay *Response, err error) {
	if g.locker != nil {
		acquired, lockErr := g.locker.Acquire(ctx, key, g.lockTTL)
		switch {
		case lockErr != nil:
			// Блокировка только ускоряет отказ; решение принимает репозиторий.
			g.logger.WithError(lockErr).WithField("idempotency_key", key).Warn("idempotency lock unavailable")
		case !acquired:
			return nil, ErrInProgress
		}
		defer func() {
			if replay != nil || err != nil {
				g.unlock(ctx, key)
			}
		}()
	}

	record, err := g.repo.CreateProcessing(key, requestHash, g.now().Add(g.recordTTL))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Status.Replayable():
			return &Response{Status: record.HTTPStatus, Body: record.ResponseBody}, nil
		case record.Status == domain.IdempotencyStatusProcessing:
			return nil, ErrInProgress
		default:
			return nil, fmt.Errorf("idempotency record %s: unknown status %q", key, record.Status)
		}
	default:
		return nil, fmt.Errorf("create idempotency record: %w", err)
	}
}

// Finish сохраняет ответ: 5xx помечается failed, остальное done.
func (g *Guard) Finish(ctx context.Context, key string, status int, body []byte) {
	defer g.unlock(ctx, key)

	var err error
	if domain.IdempotencyStatusForHTTP(status) == domain.IdempotencyStatusFailed {
		err = g.repo.MarkFailed(key, body, status)
	} else {
		err = g.repo.MarkDone(key, body, status)
	}
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": key,
			"http_status":     status,
		}).Warn("failed to store idempotent response")
	}
}

func (g *Guard) unlock(ctx context.Context, key string) {
	if g.locker == nil {
		return
	}
	// Снимаем блокировку и после отмены запроса.
	if err := g.locker.Release(context.WithoutCancel(ctx), key); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Debug("failed to release idempotency lock")
	}
}
