package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CouponKind задаёт способ расчёта скидки.
type CouponKind string

const (
	// CouponKindPercent: процент от subtotal.
	CouponKindPercent CouponKind = "percent"
	// CouponKindFixed: фиксированная сумма.
	CouponKindFixed CouponKind = "fixed"
)

// Coupon: промокод.
type Coupon struct {
	Code             string
	Kind             CouponKind
	PercentOff       decimal.Decimal
	AmountOffMinor   int64
	MinSubtotalMinor int64
	// MaxUses = 0 означает без ограничения.
	MaxUses    int
	Uses       int
	ValidFrom  time.Time
	ValidUntil time.Time
	Active     bool
}

// NormalizeCouponCode приводит код к виду, в котором он хранится.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check проверяет применимость купона к сумме subtotal в момент now.
func (c *Coupon) Check(subtotalMinor int64, now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return ErrCouponExpired
	}
	if !c.ValidUntil.IsZero() && !now.Before(c.ValidUntil) {
		return ErrCouponExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return ErrCouponExhausted
	}
	if subtotalMinor < c.MinSubtotalMinor {
		return ErrCouponMinSubtotal
	}
	return nil
}

// DiscountMinor считает скидку для subtotal, не превышая его.
func (c *Coupon) DiscountMinor(subtotalMinor int64) int64 {
	var discount int64
	switch c.Kind {
	case CouponKindPercent:
		pct := c.PercentOff
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		discount = PercentOf(subtotalMinor, pct)
	case CouponKindFixed:
		discount = c.AmountOffMinor
	}
	if discount > subtotalMinor {
		discount = subtotalMinor
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
