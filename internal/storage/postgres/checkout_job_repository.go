package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const checkoutJobColumns = `id, cart_uuid, status, attempts, max_attempts, next_run_at, last_error,
	order_id, cart, version, created_at, updated_at`

type checkoutJobRepository struct {
	q dbtx
}

// NewCheckoutJobRepository создаёт PostgreSQL-реализацию CheckoutJobRepository.
func NewCheckoutJobRepository(store *Store) domain.CheckoutJobRepository {
	return &checkoutJobRepository{q: store.DB()}
}

// CreateForCart опирается на UNIQUE(cart_uuid): повторный checkout получает существующую задачу.
func (r *checkoutJobRepository) CreateForCart(job domain.CheckoutJob) (domain.CheckoutJob, bool, error) {
	ctx, cancel := opContext()
	defer cancel()

	cart, err := json.Marshal(job.Cart)
	if err != nil {
		return domain.CheckoutJob{}, false, fmt.Errorf("encode cart snapshot: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO checkout_jobs (`+checkoutJobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (cart_uuid) DO NOTHING
	`,
		job.ID, job.CartUUID, string(job.Status), job.Attempts, job.MaxAttempts, job.NextRunAt,
		job.LastError, job.OrderID, cart, job.Version, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CheckoutJob{}, false, domain.ErrCheckoutJobConflict
		}
		return domain.CheckoutJob{}, false, fmt.Errorf("insert checkout job: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return domain.CheckoutJob{}, false, fmt.Errorf("rows affected: %w", err)
	} else if affected == 1 {
		return job, true, nil
	}

	existing, err := r.getOne(`SELECT `+checkoutJobColumns+` FROM checkout_jobs WHERE cart_uuid = $1`, job.CartUUID)
	if err != nil {
		return domain.CheckoutJob{}, false, err
	}
	return existing, false, nil
}

func (r *checkoutJobRepository) Get(id string) (domain.CheckoutJob, error) {
	return r.getOne(`SELECT `+checkoutJobColumns+` FROM checkout_jobs WHERE id = $1`, id)
}

func (r *checkoutJobRepository) Save(job domain.CheckoutJob) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE checkout_jobs
		SET status = $1,
		    attempts = $2,
		    next_run_at = $3,
		    last_error = $4,
		    order_id = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(job.Status), job.Attempts, job.NextRunAt, job.LastError, job.OrderID,
		job.UpdatedAt, job.ID, job.Version,
	)
	if err != nil {
		return fmt.Errorf("update checkout job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM checkout_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check checkout job exists: %w", err)
	}
	if !exists {
		return domain.ErrCheckoutJobNotFound
	}
	return domain.ErrCheckoutJobConflict
}

func (r *checkoutJobRepository) ListDue(now time.Time, limit int) ([]domain.CheckoutJob, error) {
	ctx, cancel := opContext()
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+checkoutJobColumns+`
		FROM checkout_jobs
		WHERE status IN ('pending', 'processing')
		  AND next_run_at <= $1
		ORDER BY next_run_at ASC, id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due checkout jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.CheckoutJob, 0)
	for rows.Next() {
		job, err := scanCheckoutJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkout jobs: %w", err)
	}
	return jobs, nil
}

func (r *checkoutJobRepository) getOne(query string, args ...any) (domain.CheckoutJob, error) {
	ctx, cancel := opContext()
	defer cancel()

	job, err := scanCheckoutJob(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CheckoutJob{}, domain.ErrCheckoutJobNotFound
	}
	return job, err
}

func scanCheckoutJob(row rowScanner) (domain.CheckoutJob, error) {
	var (
		job    domain.CheckoutJob
		status string
		cart   []byte
	)
	if err := row.Scan(
		&job.ID, &job.CartUUID, &status, &job.Attempts, &job.MaxAttempts, &job.NextRunAt,
		&job.LastError, &job.OrderID, &cart, &job.Version, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CheckoutJob{}, err
		}
		return domain.CheckoutJob{}, fmt.Errorf("scan checkout job: %w", err)
	}
	job.Status = domain.CheckoutJobStatus(status)
	if err := json.Unmarshal(cart, &job.Cart); err != nil {
		return domain.CheckoutJob{}, fmt.Errorf("decode cart snapshot: %w", err)
	}
	return job, nil
}

var _ domain.CheckoutJobRepository = (*checkoutJobRepository)(nil)
