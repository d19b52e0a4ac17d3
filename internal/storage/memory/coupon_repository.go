package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CouponRepository хранит купоны по нормализованному коду.
type CouponRepository struct {
	mu    sync.Mutex
	items map[string]domain.Coupon
}

// NewCouponRepository создаёт пустое хранилище купонов.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{items: make(map[string]domain.Coupon)}
}

// Put добавляет или заменяет купон.
func (r *CouponRepository) Put(c domain.Coupon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Code = domain.NormalizeCouponCode(c.Code)
	r.items[c.Code] = c
}

func (r *CouponRepository) Get(code string) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return c, nil
}

// Redeem увеличивает Uses под общей блокировкой.
func (r *CouponRepository) Redeem(code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = domain.NormalizeCouponCode(code)
	c, ok := r.items[code]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if !c.Active {
		return domain.ErrCouponInactive
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return domain.ErrCouponExhausted
	}
	c.Uses++
	r.items[code] = c
	return nil
}

var _ domain.CouponRepository = (*CouponRepository)(nil)
