// Package coupon проверяет и погашает промокоды.
package coupon

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service: операции над купонами.
type Service struct {
	repo   domain.CouponRepository
	logger *log.Entry
	now    func() time.Time
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис купонов.
func NewService(repo domain.CouponRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.New().WithField("component", "coupon"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate проверяет купон для subtotal и возвращает размер скидки.
func (s *Service) Validate(code string, subtotalMinor int64, now time.Time) (domain.Coupon, int64, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return domain.Coupon{}, 0, domain.ErrCouponNotFound
	}
	coupon, err := s.repo.Get(code)
	if err != nil {
		return domain.Coupon{}, 0, err
	}
	if err := coupon.Check(subtotalMinor, now); err != nil {
		return coupon, 0, err
	}
	return coupon, coupon.DiscountMinor(subtotalMinor), nil
}

// Apply применяет купон к корзине; пустой код снимает купон.
func (s *Service) Apply(cart *domain.Cart, code string) error {
	now := s.now()
	if strings.TrimSpace(code) == "" {
		return cart.ClearCoupon(now)
	}
	if cart.Locked() {
		return domain.ErrCartLocked
	}
	coupon, discount, err := s.Validate(code, cart.SubtotalMinor(), now)
	if err != nil {
		return err
	}
	return cart.SetCoupon(coupon.Code, discount, now)
}

// Reprice пересчитывает скидку корзины по текущему состоянию купона.
// Если купон больше не применим, возвращает ошибку и не трогает корзину.
func (s *Service) Reprice(code string, subtotalMinor int64) (int64, error) {
	if strings.TrimSpace(code) == "" {
		return 0, nil
	}
	_, discount, err := s.Validate(code, subtotalMinor, s.now())
	return discount, err
}

// Redeem учитывает одно использование купона.
func (s *Service) Redeem(code string) error {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil
	}
	if err := s.repo.Redeem(code, s.now()); err != nil {
		return err
	}
	s.logger.WithField("coupon", code).Debug("coupon redeemed")
	return nil
}

// ConfirmOrder гасит купон подтверждённого заказа. Подключается хуком саги, поэтому
// купон pix и boleto тратится только после фактической оплаты.
func (s *Service) ConfirmOrder(order domain.Order) error {
	if err := s.Redeem(order.CouponCode); err != nil {
		return fmt.Errorf("order %s: %w", order.ID, err)
	}
	return nil
}
