package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paymentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Payment
	// order хранит порядок вставки, чтобы GetByOrder отдавал последний платёж.
	order []string
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return newPaymentRepository()
}

func newPaymentRepository() *paymentRepositoryInMemory {
	return &paymentRepositoryInMemory{items: make(map[string]domain.Payment)}
}

func (r *paymentRepositoryInMemory) Create(payment domain.Payment) error {
	if errs := payment.Validate(); len(errs) > 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[payment.ID]; exists {
		return domain.ErrPaymentIndeterminate
	}
	r.items[payment.ID] = payment
	r.order = append(r.order, payment.ID)
	return nil
}

func (r *paymentRepositoryInMemory) Get(id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByOrder(orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		if payment := r.items[r.order[i]]; payment.OrderID == orderID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *paymentRepositoryInMemory) GetByExternalID(provider, externalID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if externalID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	for _, payment := range r.items {
		if payment.Provider == provider && payment.ExternalID == externalID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *paymentRepositoryInMemory) Save(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.items[payment.ID] = payment
	return nil
}

func (r *paymentRepositoryInMemory) snapshot() func() {
	r.mu.RLock()
	items := make(map[string]domain.Payment, len(r.items))
	for id, p := range r.items {
		items[id] = p
	}
	order := append([]string(nil), r.order...)
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		r.items, r.order = items, order
		r.mu.Unlock()
	}
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
