package postgres

import (
	"context"
	"database/sql"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork возвращает единицу работы: все репозитории внутри Do делят одну транзакцию.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{db: store.DB()}
}

func (u *unitOfWork) Do(fn func(repos domain.Repositories) error) error {
	// Транзакция живёт дольше одной операции, поэтому без opTimeout: его применяет каждый запрос.
	ctx := context.Background()
	return inTx(ctx, u.db, func(tx dbtx) error {
		return fn(repositoriesOn(tx))
	})
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
