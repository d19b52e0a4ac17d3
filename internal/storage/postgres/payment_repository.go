package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const paymentColumns = `id, order_id, provider, external_id, customer_ref, method, status,
	amount_minor, refunded_minor, created_at, updated_at`

type paymentRepository struct {
	q dbtx
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{q: store.DB()}
}

func (r *paymentRepository) Create(p domain.Payment) error {
	if errs := p.Validate(); len(errs) > 0 {
		return errs[0]
	}

	ctx, cancel := opContext()
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		p.ID, p.OrderID, p.Provider, nullString(p.ExternalID), p.CustomerRef, string(p.Method),
		string(p.Status), p.AmountMinor, p.RefundedMinor, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentIndeterminate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(id string) (domain.Payment, error) {
	return r.getOne(`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *paymentRepository) GetByOrder(orderID string) (domain.Payment, error) {
	return r.getOne(`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, orderID)
}

func (r *paymentRepository) GetByExternalID(provider, externalID string) (domain.Payment, error) {
	if externalID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.getOne(`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND external_id = $2`, provider, externalID)
}

func (r *paymentRepository) Save(p domain.Payment) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET external_id = $1,
		    customer_ref = $2,
		    status = $3,
		    amount_minor = $4,
		    refunded_minor = $5,
		    updated_at = $6
		WHERE id = $7
	`, nullString(p.ExternalID), p.CustomerRef, string(p.Status), p.AmountMinor, p.RefundedMinor, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) getOne(query string, args ...any) (domain.Payment, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		p          domain.Payment
		externalID sql.NullString
		method     string
		status     string
	)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.OrderID, &p.Provider, &externalID, &p.CustomerRef, &method, &status,
		&p.AmountMinor, &p.RefundedMinor, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	p.ExternalID = externalID.String
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return p, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
