// Package catalog отдаёт товары и категории витрины.
package catalog

import (
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service: чтение каталога.
type Service struct {
	products   domain.ProductRepository
	categories domain.CategoryRepository
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, categories domain.CategoryRepository) *Service {
	return &Service{products: products, categories: categories}
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.products.Get(id)
}

// ListProducts возвращает страницу каталога; лимит приводится к допустимому диапазону.
func (s *Service) ListProducts(filter domain.ProductFilter) ([]domain.Product, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.products.List(filter)
}

// ListCategories возвращает все категории.
func (s *Service) ListCategories() ([]domain.Category, error) {
	return s.categories.List()
}

// GetCategory возвращает категорию.
func (s *Service) GetCategory(id string) (domain.Category, error) {
	return s.categories.Get(id)
}

// ProductsByIDs возвращает товары в порядке ids; отсутствующие пропускаются.
func (s *Service) ProductsByIDs(ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.products.ListByIDs(ids)
}

// SellableProduct возвращает товар, только если он доступен для продажи.
func (s *Service) SellableProduct(id string) (domain.Product, error) {
	product, err := s.GetProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return domain.Product{}, domain.ErrProductInactive
	}
	return product, nil
}
