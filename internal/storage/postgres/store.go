package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultConnTimeout = 5 * time.Second

// PoolConfig задаёт параметры пула соединений.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig подходит для одного инстанса сервиса.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// Store владеет пулом соединений PostgreSQL и выдаёт репозитории поверх него.
type Store struct {
	db *sql.DB
}

// Open открывает пул через драйвер pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := NewStore(db)
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// NewStore оборачивает уже открытый *sql.DB (используется в тестах с sqlmock).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB возвращает пул для низкоуровневого доступа.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы; используется readiness-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Repositories возвращает транзакционные репозитории поверх пула (каждый вызов в своей транзакции).
func (s *Store) Repositories() domain.Repositories {
	return repositoriesOn(s.db)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func repositoriesOn(q dbtx) domain.Repositories {
	return domain.Repositories{
		Orders:   &orderRepository{q: q},
		Payments: &paymentRepository{q: q},
		Jobs:     &checkoutJobRepository{q: q},
		Timeline: &timelineRepository{q: q},
		Outbox:   &outboxRepository{q: q},
	}
}
