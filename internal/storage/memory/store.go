package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store собирает все in-memory репозитории, используемые без Postgres.
type Store struct {
	Catalog     *CatalogRepository
	Coupons     *CouponRepository
	Campaigns   *CampaignRepository
	Inventory   *InventoryRepository
	Idempotency domain.IdempotencyRepository

	orders   *orderRepositoryInMemory
	payments *paymentRepositoryInMemory
	jobs     *checkoutJobRepositoryInMemory
	timeline *timelineRepositoryInMemory
	outbox   *outboxRepositoryInMemory

	txMu sync.Mutex
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		Catalog:     NewCatalogRepository(),
		Coupons:     NewCouponRepository(),
		Campaigns:   NewCampaignRepository(),
		Inventory:   NewInventoryRepository(),
		Idempotency: NewIdempotencyRepository(),
		orders:      newOrderRepository(),
		payments:    newPaymentRepository(),
		jobs:        newCheckoutJobRepository(),
		timeline:    newTimelineRepository(),
		outbox:      newOutboxRepository(),
	}
}

// Repositories возвращает транзакционные репозитории вне единицы работы.
func (s *Store) Repositories() domain.Repositories {
	return domain.Repositories{
		Orders:   s.orders,
		Payments: s.payments,
		Jobs:     s.jobs,
		Timeline: s.timeline,
		Outbox:   s.outbox,
	}
}

// UnitOfWork возвращает единицу работы поверх Store.
func (s *Store) UnitOfWork() domain.UnitOfWork {
	return unitOfWork{store: s}
}

type unitOfWork struct {
	store *Store
}

// Do выполняет fn эксклюзивно; при ошибке репозитории откатываются к снимку.
func (u unitOfWork) Do(fn func(repos domain.Repositories) error) error {
	s := u.store
	s.txMu.Lock()
	defer s.txMu.Unlock()

	restores := []func(){
		s.orders.snapshot(),
		s.payments.snapshot(),
		s.jobs.snapshot(),
		s.timeline.snapshot(),
		s.outbox.snapshot(),
	}
	if err := fn(s.Repositories()); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

var _ domain.UnitOfWork = unitOfWork{}
