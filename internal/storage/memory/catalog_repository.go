package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CatalogRepository хранит товары и категории в памяти.
// Put-методы используются для наполнения (dev-сид и тесты).
type CatalogRepository struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	categories map[string]domain.Category
}

// NewCatalogRepository создаёт пустой каталог.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
	}
}

// PutProduct добавляет или заменяет товар.
func (r *CatalogRepository) PutProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Currency = domain.NormalizeCurrency(p.Currency)
	r.products[p.ID] = p
}

// PutCategory добавляет или заменяет категорию.
func (r *CatalogRepository) PutCategory(c domain.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[c.ID] = c
}

// Products возвращает представление каталога как ProductRepository.
func (r *CatalogRepository) Products() domain.ProductRepository { return productView{r} }

// Categories возвращает представление каталога как CategoryRepository.
func (r *CatalogRepository) Categories() domain.CategoryRepository { return categoryView{r} }

type productView struct{ r *CatalogRepository }

func (v productView) Get(id string) (domain.Product, error) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	p, ok := v.r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (v productView) List(filter domain.ProductFilter) ([]domain.Product, error) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(v.r.products))
	for _, p := range v.r.products {
		if filter.OnlyActive && !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return paginate(result, filter.Offset, filter.Limit), nil
}

// ListByIDs возвращает найденные товары в порядке ids; отсутствующие пропускаются.
func (v productView) ListByIDs(ids []string) ([]domain.Product, error) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := v.r.products[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

type categoryView struct{ r *CatalogRepository }

func (v categoryView) Get(id string) (domain.Category, error) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	c, ok := v.r.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return c, nil
}

func (v categoryView) List() ([]domain.Category, error) {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()

	result := make([]domain.Category, 0, len(v.r.categories))
	for _, c := range v.r.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var (
	_ domain.ProductRepository  = productView{}
	_ domain.CategoryRepository = categoryView{}
)
