package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, customer_id, customer_email, cart_uuid, checkout_job_id, status, currency,
	subtotal_minor, discount_minor, freight_minor, fee_minor, amount_minor, coupon_code,
	gateway, payment_method, installments, shipping, shipping_code, version, created_at, updated_at`

type orderRepository struct {
	q dbtx
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{q: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}

	return inTx(ctx, r.q, func(tx dbtx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		`,
			order.ID, order.CustomerID, order.CustomerEmail, order.CartUUID, order.CheckoutJobID,
			string(order.Status), order.Currency, order.SubtotalMinor, order.DiscountMinor,
			order.FreightMinor, order.FeeMinor, order.AmountMinor, order.CouponCode,
			order.Gateway, string(order.PaymentMethod), order.Installments, shipping,
			order.ShippingCode, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, sku, name, qty, price_minor, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`,
				item.ID, order.ID, item.ProductID, item.SKU, item.Name, item.Qty, item.PriceMinor, item.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{customerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	// Позиции догружаем после закрытия курсора: внутри транзакции нельзя держать два.
	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    discount_minor = $2,
		    freight_minor = $3,
		    fee_minor = $4,
		    amount_minor = $5,
		    gateway = $6,
		    payment_method = $7,
		    installments = $8,
		    shipping = $9,
		    shipping_code = $10,
		    version = version + 1,
		    updated_at = $11
		WHERE id = $12
		  AND version = $13
	`,
		string(order.Status), order.DiscountMinor, order.FreightMinor, order.FeeMinor,
		order.AmountMinor, order.Gateway, string(order.PaymentMethod), order.Installments,
		shipping, order.ShippingCode, order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, sku, name, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.SKU, &item.Name, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// rowScanner: общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		method   string
		shipping []byte
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.CustomerEmail, &order.CartUUID, &order.CheckoutJobID,
		&status, &order.Currency, &order.SubtotalMinor, &order.DiscountMinor, &order.FreightMinor,
		&order.FeeMinor, &order.AmountMinor, &order.CouponCode, &order.Gateway, &method,
		&order.Installments, &shipping, &order.ShippingCode, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &order.Shipping); err != nil {
			return domain.Order{}, fmt.Errorf("decode shipping: %w", err)
		}
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
