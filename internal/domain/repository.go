package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// PaymentRepository хранит платежи заказов.
type PaymentRepository interface {
	Create(payment Payment) error
	Get(id string) (Payment, error)
	// GetByOrder возвращает последний платёж заказа или ErrPaymentNotFound.
	GetByOrder(orderID string) (Payment, error)
	GetByExternalID(provider, externalID string) (Payment, error)
	Save(payment Payment) error
}

// CheckoutJobRepository хранит задачи checkout.
type CheckoutJobRepository interface {
	// CreateForCart создаёт задачу; если для корзины задача уже есть, возвращает её и created=false.
	CreateForCart(job CheckoutJob) (stored CheckoutJob, created bool, err error)
	Get(id string) (CheckoutJob, error)
	// Save сохраняет задачу с проверкой Version и увеличивает её.
	Save(job CheckoutJob) error
	// ListDue возвращает pending-задачи и processing с истёкшей арендой, у которых next_run_at <= now.
	ListDue(now time.Time, limit int) ([]CheckoutJob, error)
}

// ProductRepository: чтение каталога.
type ProductRepository interface {
	Get(id string) (Product, error)
	List(filter ProductFilter) ([]Product, error)
	ListByIDs(ids []string) ([]Product, error)
}

// CategoryRepository: чтение категорий.
type CategoryRepository interface {
	Get(id string) (Category, error)
	List() ([]Category, error)
}

// CouponRepository: купоны.
type CouponRepository interface {
	Get(code string) (Coupon, error)
	// Redeem атомарно увеличивает счётчик использований, соблюдая MaxUses.
	Redeem(code string, now time.Time) error
}

// CampaignRepository: кампании краудфандинга.
type CampaignRepository interface {
	Get(id string) (Campaign, error)
	ListActive(now time.Time) ([]Campaign, error)
	// AddContribution идемпотентно по (campaign, order) учитывает вклад; added=false для повтора.
	AddContribution(c Contribution) (added bool, err error)
}

// InventoryRepository: складской журнал.
type InventoryRepository interface {
	Balance(productID string) (int32, error)
	Reserve(orderID string, lines []InventoryLine, now time.Time) error
	Release(orderID string, lines []InventoryLine, now time.Time) error
	Restock(productID string, qty int32, now time.Time) error
	Entries(productID string) ([]InventoryEntry, error)
}

// Repositories: набор репозиториев, привязанных к одной транзакции.
type Repositories struct {
	Orders   OrderRepository
	Payments PaymentRepository
	Jobs     CheckoutJobRepository
	Timeline TimelineRepository
	Outbox   OutboxRepository
}

// UnitOfWork выполняет fn в одной транзакции; ошибка fn откатывает все изменения.
type UnitOfWork interface {
	Do(fn func(repos Repositories) error) error
}
