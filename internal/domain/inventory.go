package domain

import "time"

// InventoryEntryKind: тип движения по складскому журналу.
type InventoryEntryKind string

const (
	// InventoryEntryRestock: поступление товара.
	InventoryEntryRestock InventoryEntryKind = "restock"
	// InventoryEntryReserve: списание под заказ (отрицательное qty).
	InventoryEntryReserve InventoryEntryKind = "reserve"
	// InventoryEntryRelease: возврат резерва (компенсация).
	InventoryEntryRelease InventoryEntryKind = "release"
	// InventoryEntryAdjust: ручная корректировка.
	InventoryEntryAdjust InventoryEntryKind = "adjust"
)

// InventoryEntry: строка журнала склада; остаток товара = Σ Qty.
type InventoryEntry struct {
	ID        string
	ProductID string
	OrderID   string
	Kind      InventoryEntryKind
	Qty       int32
	CreatedAt time.Time
}

// Validate проверяет, корректно ли заполнены ключевые поля записи.
func (e *InventoryEntry) Validate() []error {
	var errs []error

	if e.ProductID == "" {
		errs = append(errs, ErrInventoryProductRequired)
	}
	if e.Qty == 0 {
		errs = append(errs, ErrInventoryQtyInvalid)
	}
	if (e.Kind == InventoryEntryReserve || e.Kind == InventoryEntryRelease) && e.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}

	return errs
}

// InventoryLine: запрос на движение по товару.
type InventoryLine struct {
	ProductID string
	Qty       int32
}

// LinesFromOrderItems агрегирует позиции заказа по товару.
func LinesFromOrderItems(items []OrderItem) []InventoryLine {
	index := make(map[string]int, len(items))
	lines := make([]InventoryLine, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			lines[i].Qty += item.Qty
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, InventoryLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	return lines
}
