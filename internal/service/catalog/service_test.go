package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService() *Service {
	repo := memory.NewCatalogRepository()
	repo.PutCategory(domain.Category{ID: "cat-books", Name: "Livros", Slug: "livros"})
	repo.PutCategory(domain.Category{ID: "cat-games", Name: "Jogos", Slug: "jogos"})
	repo.PutProduct(domain.Product{ID: "p-1", SKU: "BOOK-1", Name: "Almanaque", CategoryID: "cat-books", PriceMinor: 4990, Active: true})
	repo.PutProduct(domain.Product{ID: "p-2", SKU: "GAME-1", Name: "Baralho", CategoryID: "cat-games", PriceMinor: 8990, Active: true})
	repo.PutProduct(domain.Product{ID: "p-3", SKU: "GAME-2", Name: "Caixa", CategoryID: "cat-games", PriceMinor: 1990, Active: false})
	return NewService(repo.Products(), repo.Categories())
}

func TestService_ListProductsFiltersAndClampsLimit(t *testing.T) {
	svc := newTestService()

	all, err := svc.ListProducts(domain.ProductFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	games, err := svc.ListProducts(domain.ProductFilter{CategoryID: "cat-games", OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "p-2", games[0].ID)

	found, err := svc.ListProducts(domain.ProductFilter{Search: "  book "})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "p-1", found[0].ID)
	assert.Equal(t, "BRL", found[0].Currency)
}

func TestService_SellableProduct(t *testing.T) {
	svc := newTestService()

	product, err := svc.SellableProduct("p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4990), product.PriceMinor)

	_, err = svc.SellableProduct("p-3")
	assert.True(t, errors.Is(err, domain.ErrProductInactive))

	_, err = svc.SellableProduct(" ")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestService_ProductsByIDsKeepsOrder(t *testing.T) {
	svc := newTestService()

	products, err := svc.ProductsByIDs([]string{"p-2", "missing", "p-1"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p-2", products[0].ID)
	assert.Equal(t, "p-1", products[1].ID)

	empty, err := svc.ProductsByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_Categories(t *testing.T) {
	svc := newTestService()

	categories, err := svc.ListCategories()
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Jogos", categories[0].Name)

	_, err = svc.GetCategory("nope")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}
