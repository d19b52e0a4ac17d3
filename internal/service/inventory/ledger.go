// Package inventory ведёт складской журнал: остаток товара равен сумме движений.
package inventory

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger реализует InventoryService поверх журнала движений.
type Ledger struct {
	repo   domain.InventoryRepository
	logger *log.Entry
	now    func() time.Time
}

// NewLedger создаёт сервис склада.
func NewLedger(repo domain.InventoryRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Available возвращает текущий остаток; отрицательный баланс не отдаётся наружу.
func (l *Ledger) Available(productID string) (int32, error) {
	balance, err := l.repo.Balance(productID)
	if err != nil {
		return 0, err
	}
	if balance < 0 {
		return 0, nil
	}
	return balance, nil
}

// Reserve списывает позиции заказа (одна запись на товар).
func (l *Ledger) Reserve(orderID string, items []domain.OrderItem) error {
	lines := domain.LinesFromOrderItems(items)
	if err := l.repo.Reserve(orderID, lines, l.now()); err != nil {
		return err
	}
	l.logger.WithFields(log.Fields{
		"order_id": orderID,
		"products": len(lines),
	}).Debug("inventory reserved")
	return nil
}

// Release возвращает резерв заказа; товары без резерва пропускаются.
func (l *Ledger) Release(orderID string, items []domain.OrderItem) error {
	if err := l.repo.Release(orderID, domain.LinesFromOrderItems(items), l.now()); err != nil {
		return err
	}
	l.logger.WithField("order_id", orderID).Debug("inventory released")
	return nil
}

// Restock фиксирует поступление товара.
func (l *Ledger) Restock(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrInventoryQtyInvalid
	}
	if err := l.repo.Restock(productID, qty, l.now()); err != nil {
		return fmt.Errorf("restock %s: %w", productID, err)
	}
	return nil
}

// CheckAvailable проверяет, что на каждый товар хватает остатка.
func (l *Ledger) CheckAvailable(lines []domain.InventoryLine) error {
	for _, line := range lines {
		available, err := l.Available(line.ProductID)
		if err != nil {
			return err
		}
		if available < line.Qty {
			return fmt.Errorf("product %s: requested %d, available %d: %w",
				line.ProductID, line.Qty, available, domain.ErrInventoryUnavailable)
		}
	}
	return nil
}

var _ domain.InventoryService = (*Ledger)(nil)
