package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// SeedDemo заполняет хранилище в памяти небольшим каталогом для локального запуска.
func SeedDemo(store *memory.Store, ledger *inventory.Ledger) error {
	now := time.Now().UTC()

	store.Catalog.PutCategory(domain.Category{ID: "cat-apparel", Name: "Vestuário", Slug: "vestuario"})
	store.Catalog.PutCategory(domain.Category{ID: "cat-tshirts", Name: "Camisetas", Slug: "camisetas", ParentID: "cat-apparel"})
	store.Catalog.PutCategory(domain.Category{ID: "cat-books", Name: "Livros", Slug: "livros"})

	store.Campaigns.Put(domain.Campaign{
		ID:        "camp-reforestation",
		Title:     "Reflorestamento da Mata Atlântica",
		GoalMinor: 5_000_000,
		StartsAt:  now.Add(-24 * time.Hour),
		EndsAt:    now.AddDate(0, 3, 0),
		Active:    true,
	})

	products := []struct {
		product domain.Product
		stock   int32
	}{
		{domain.Product{
			ID: "prod-tshirt-basic", SKU: "TSH-001", Name: "Camiseta básica", CategoryID: "cat-tshirts",
			PriceMinor: 4990, WeightGrams: 250, HeightCm: 3, WidthCm: 25, LengthCm: 30,
		}, 100},
		{domain.Product{
			ID: "prod-tshirt-campaign", SKU: "TSH-002", Name: "Camiseta Mata Atlântica", CategoryID: "cat-tshirts",
			CampaignID: "camp-reforestation", PriceMinor: 7990, WeightGrams: 250, HeightCm: 3, WidthCm: 25, LengthCm: 30,
		}, 50},
		{domain.Product{
			ID: "prod-book-go", SKU: "BK-001", Name: "Programação em Go", CategoryID: "cat-books",
			PriceMinor: 12900, WeightGrams: 900, HeightCm: 4, WidthCm: 17, LengthCm: 24,
		}, 20},
	}
	for _, p := range products {
		p.product.Currency = "BRL"
		p.product.Active = true
		p.product.CreatedAt = now
		p.product.UpdatedAt = now
		store.Catalog.PutProduct(p.product)
		if err := ledger.Restock(p.product.ID, p.stock); err != nil {
			return err
		}
	}

	store.Coupons.Put(domain.Coupon{
		Code:       "BEMVINDO10",
		Kind:       domain.CouponKindPercent,
		PercentOff: decimal.NewFromInt(10),
		Active:     true,
	})
	store.Coupons.Put(domain.Coupon{
		Code:             "FRETE20",
		Kind:             domain.CouponKindFixed,
		AmountOffMinor:   2000,
		MinSubtotalMinor: 10000,
		MaxUses:          100,
		Active:           true,
	})
	return nil
}
