package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type inventoryRepository struct {
	q dbtx
}

// NewInventoryRepository создаёт PostgreSQL-реализацию складского журнала.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{q: store.DB()}
}

func (r *inventoryRepository) Balance(productID string) (int32, error) {
	ctx, cancel := opContext()
	defer cancel()
	return balance(ctx, r.q, productID)
}

// Reserve блокирует товары advisory-локами в стабильном порядке, затем проверяет остатки.
func (r *inventoryRepository) Reserve(orderID string, lines []domain.InventoryLine, now time.Time) error {
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return domain.ErrInventoryQtyInvalid
		}
	}

	ctx, cancel := opContext()
	defer cancel()

	sorted := sortedLines(lines)
	return inTx(ctx, r.q, func(tx dbtx) error {
		if err := lockProducts(ctx, tx, sorted); err != nil {
			return err
		}

		todo := make([]domain.InventoryLine, 0, len(sorted))
		for _, line := range sorted {
			if _, found, err := orderEntryQty(ctx, tx, orderID, line.ProductID, domain.InventoryEntryReserve); err != nil {
				return err
			} else if found {
				continue
			}
			available, err := balance(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if available < line.Qty {
				return fmt.Errorf("product %s: %w", line.ProductID, domain.ErrInventoryUnavailable)
			}
			todo = append(todo, line)
		}

		for _, line := range todo {
			if err := insertEntry(ctx, tx, domain.InventoryEntry{
				ProductID: line.ProductID,
				OrderID:   orderID,
				Kind:      domain.InventoryEntryReserve,
				Qty:       -line.Qty,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Release возвращает ровно зарезервированное количество; повтор не создаёт записей.
func (r *inventoryRepository) Release(orderID string, lines []domain.InventoryLine, now time.Time) error {
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	ctx, cancel := opContext()
	defer cancel()

	return inTx(ctx, r.q, func(tx dbtx) error {
		for _, line := range sortedLines(lines) {
			reserved, found, err := orderEntryQty(ctx, tx, orderID, line.ProductID, domain.InventoryEntryReserve)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO inventory_entries (id, product_id, order_id, kind, qty, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT DO NOTHING
			`, uuid.NewString(), line.ProductID, orderID, string(domain.InventoryEntryRelease), reserved, now); err != nil {
				return fmt.Errorf("insert release entry: %w", err)
			}
		}
		return nil
	})
}

func (r *inventoryRepository) Restock(productID string, qty int32, now time.Time) error {
	entry := domain.InventoryEntry{ProductID: productID, Kind: domain.InventoryEntryRestock, Qty: qty, CreatedAt: now}
	if errs := entry.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if qty < 0 {
		return domain.ErrInventoryQtyInvalid
	}

	ctx, cancel := opContext()
	defer cancel()
	return insertEntry(ctx, r.q, entry)
}

func (r *inventoryRepository) Entries(productID string) ([]domain.InventoryEntry, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(order_id, ''), kind, qty, created_at
		FROM inventory_entries
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list inventory entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.InventoryEntry, 0)
	for rows.Next() {
		var (
			e    domain.InventoryEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.OrderID, &kind, &e.Qty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory entry: %w", err)
		}
		e.Kind = domain.InventoryEntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func balance(ctx context.Context, q dbtx, productID string) (int32, error) {
	var total int32
	if err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty), 0)::INTEGER
		FROM inventory_entries
		WHERE product_id = $1
	`, productID).Scan(&total); err != nil {
		return 0, fmt.Errorf("inventory balance: %w", err)
	}
	return total, nil
}

// orderEntryQty возвращает модуль qty записи заказа выбранного типа.
func orderEntryQty(ctx context.Context, q dbtx, orderID, productID string, kind domain.InventoryEntryKind) (int32, bool, error) {
	var qty int32
	err := q.QueryRowContext(ctx, `
		SELECT qty
		FROM inventory_entries
		WHERE order_id = $1 AND product_id = $2 AND kind = $3
	`, orderID, productID, string(kind)).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s entry: %w", kind, err)
	}
	if qty < 0 {
		qty = -qty
	}
	return qty, true, nil
}

func lockProducts(ctx context.Context, q dbtx, lines []domain.InventoryLine) error {
	for _, line := range lines {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, line.ProductID); err != nil {
			return fmt.Errorf("lock product %s: %w", line.ProductID, err)
		}
	}
	return nil
}

func insertEntry(ctx context.Context, q dbtx, e domain.InventoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO inventory_entries (id, product_id, order_id, kind, qty, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.ProductID, nullString(e.OrderID), string(e.Kind), e.Qty, e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s: %w", e.ProductID, domain.ErrInventoryTemporary)
		}
		return fmt.Errorf("insert inventory entry: %w", err)
	}
	return nil
}

func sortedLines(lines []domain.InventoryLine) []domain.InventoryLine {
	sorted := append([]domain.InventoryLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
