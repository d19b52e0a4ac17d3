package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type ledgerKey struct {
	orderID   string
	productID string
	kind      domain.InventoryEntryKind
}

// InventoryRepository: складской журнал в памяти; остаток считается суммой записей.
type InventoryRepository struct {
	mu      sync.Mutex
	entries map[string][]domain.InventoryEntry
	orders  map[ledgerKey]int32
}

// NewInventoryRepository создаёт пустой журнал.
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		entries: make(map[string][]domain.InventoryEntry),
		orders:  make(map[ledgerKey]int32),
	}
}

func (r *InventoryRepository) Balance(productID string) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balanceLocked(productID), nil
}

// Reserve списывает все строки разом либо ни одной.
func (r *InventoryRepository) Reserve(orderID string, lines []domain.InventoryLine, now time.Time) error {
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	todo := make([]domain.InventoryLine, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return domain.ErrInventoryQtyInvalid
		}
		if _, done := r.orders[ledgerKey{orderID, line.ProductID, domain.InventoryEntryReserve}]; done {
			continue
		}
		if r.balanceLocked(line.ProductID) < line.Qty {
			return fmt.Errorf("product %s: %w", line.ProductID, domain.ErrInventoryUnavailable)
		}
		todo = append(todo, line)
	}

	for _, line := range todo {
		r.appendLocked(domain.InventoryEntry{
			ProductID: line.ProductID,
			OrderID:   orderID,
			Kind:      domain.InventoryEntryReserve,
			Qty:       -line.Qty,
			CreatedAt: now,
		})
		r.orders[ledgerKey{orderID, line.ProductID, domain.InventoryEntryReserve}] = line.Qty
	}
	return nil
}

// Release возвращает ровно то, что было зарезервировано по заказу.
func (r *InventoryRepository) Release(orderID string, lines []domain.InventoryLine, now time.Time) error {
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range lines {
		reserved, ok := r.orders[ledgerKey{orderID, line.ProductID, domain.InventoryEntryReserve}]
		if !ok {
			continue
		}
		releaseKey := ledgerKey{orderID, line.ProductID, domain.InventoryEntryRelease}
		if _, done := r.orders[releaseKey]; done {
			continue
		}
		r.appendLocked(domain.InventoryEntry{
			ProductID: line.ProductID,
			OrderID:   orderID,
			Kind:      domain.InventoryEntryRelease,
			Qty:       reserved,
			CreatedAt: now,
		})
		r.orders[releaseKey] = reserved
	}
	return nil
}

func (r *InventoryRepository) Restock(productID string, qty int32, now time.Time) error {
	entry := domain.InventoryEntry{ProductID: productID, Kind: domain.InventoryEntryRestock, Qty: qty, CreatedAt: now}
	if errs := entry.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if qty < 0 {
		return domain.ErrInventoryQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(entry)
	return nil
}

func (r *InventoryRepository) Entries(productID string) ([]domain.InventoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.InventoryEntry(nil), r.entries[productID]...), nil
}

func (r *InventoryRepository) balanceLocked(productID string) int32 {
	var total int32
	for _, e := range r.entries[productID] {
		total += e.Qty
	}
	return total
}

func (r *InventoryRepository) appendLocked(entry domain.InventoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.entries[entry.ProductID] = append(r.entries[entry.ProductID], entry)
}

var _ domain.InventoryRepository = (*InventoryRepository)(nil)
