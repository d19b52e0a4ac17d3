package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepository struct {
	q dbtx
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{q: store.DB()}
}

func (r *couponRepository) Get(code string) (domain.Coupon, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		c          domain.Coupon
		kind       string
		percentOff decimal.Decimal
		validFrom  sql.NullTime
		validUntil sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT code, kind, percent_off, amount_off_minor, min_subtotal_minor,
		       max_uses, uses, valid_from, valid_until, active
		FROM coupons
		WHERE code = $1
	`, domain.NormalizeCouponCode(code)).Scan(
		&c.Code, &kind, &percentOff, &c.AmountOffMinor, &c.MinSubtotalMinor,
		&c.MaxUses, &c.Uses, &validFrom, &validUntil, &c.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	c.Kind = domain.CouponKind(kind)
	c.PercentOff = percentOff
	c.ValidFrom = validFrom.Time
	c.ValidUntil = validUntil.Time
	return c, nil
}

// Redeem делает условный UPDATE, гонка двух checkout за последнее использование решается в базе.
func (r *couponRepository) Redeem(code string, now time.Time) error {
	ctx, cancel := opContext()
	defer cancel()

	code = domain.NormalizeCouponCode(code)
	res, err := r.q.ExecContext(ctx, `
		UPDATE coupons
		SET uses = uses + 1
		WHERE code = $1
		  AND active
		  AND (max_uses = 0 OR uses < max_uses)
		  AND (valid_from IS NULL OR valid_from <= $2)
		  AND (valid_until IS NULL OR valid_until > $2)
	`, code, now)
	if err != nil {
		return fmt.Errorf("redeem coupon: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	coupon, err := r.Get(code)
	if err != nil {
		return err
	}
	if checkErr := coupon.Check(coupon.MinSubtotalMinor, now); checkErr != nil {
		return checkErr
	}
	return domain.ErrCouponExhausted
}

var _ domain.CouponRepository = (*couponRepository)(nil)
