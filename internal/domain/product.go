package domain

import "time"

// Product: товар каталога.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	CategoryID  string
	// CampaignID связывает товар с кампанией краудфандинга (пусто, если не связан).
	CampaignID  string
	PriceMinor  int64
	Currency    string
	WeightGrams int32
	HeightCm    int32
	WidthCm     int32
	LengthCm    int32
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category: узел дерева категорий.
type Category struct {
	ID       string
	Name     string
	Slug     string
	ParentID string
}

// ProductFilter ограничивает выборку каталога.
type ProductFilter struct {
	CategoryID string
	Search     string
	OnlyActive bool
	Limit      int
	Offset     int
}
