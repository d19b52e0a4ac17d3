package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// checkoutJobRepositoryInMemory держит задачи и индекс cart_uuid → job_id.
type checkoutJobRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.CheckoutJob
	byCart map[string]string
}

// NewCheckoutJobRepository возвращает in-memory репозиторий задач checkout.
func NewCheckoutJobRepository() domain.CheckoutJobRepository {
	return newCheckoutJobRepository()
}

func newCheckoutJobRepository() *checkoutJobRepositoryInMemory {
	return &checkoutJobRepositoryInMemory{
		items:  make(map[string]domain.CheckoutJob),
		byCart: make(map[string]string),
	}
}

func (r *checkoutJobRepositoryInMemory) CreateForCart(job domain.CheckoutJob) (domain.CheckoutJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byCart[job.CartUUID]; ok {
		return r.items[id], false, nil
	}
	if _, exists := r.items[job.ID]; exists {
		return domain.CheckoutJob{}, false, domain.ErrCheckoutJobConflict
	}
	r.items[job.ID] = job
	r.byCart[job.CartUUID] = job.ID
	return job, true, nil
}

func (r *checkoutJobRepositoryInMemory) Get(id string) (domain.CheckoutJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.items[id]
	if !ok {
		return domain.CheckoutJob{}, domain.ErrCheckoutJobNotFound
	}
	return job, nil
}

func (r *checkoutJobRepositoryInMemory) Save(job domain.CheckoutJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[job.ID]
	if !ok {
		return domain.ErrCheckoutJobNotFound
	}
	if current.Version != job.Version {
		return domain.ErrCheckoutJobConflict
	}
	job.Version++
	r.items[job.ID] = job
	return nil
}

// ListDue возвращает pending-задачи и processing с истёкшей арендой по возрастанию next_run_at.
func (r *checkoutJobRepositoryInMemory) ListDue(now time.Time, limit int) ([]domain.CheckoutJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]domain.CheckoutJob, 0)
	for _, job := range r.items {
		if job.Due(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].NextRunAt.Before(due[j].NextRunAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *checkoutJobRepositoryInMemory) snapshot() func() {
	r.mu.RLock()
	items := make(map[string]domain.CheckoutJob, len(r.items))
	for id, job := range r.items {
		items[id] = job
	}
	byCart := make(map[string]string, len(r.byCart))
	for cart, id := range r.byCart {
		byCart[cart] = id
	}
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		r.items, r.byCart = items, byCart
		r.mu.Unlock()
	}
}

var _ domain.CheckoutJobRepository = (*checkoutJobRepositoryInMemory)(nil)
