package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `id, sku, name, description, COALESCE(category_id, ''), COALESCE(campaign_id, ''),
	price_minor, currency, weight_grams, height_cm, width_cm, length_cm, active, created_at, updated_at`

type productRepository struct {
	q dbtx
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := opContext()
	defer cancel()

	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) List(filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OnlyActive {
		where = append(where, "active")
	}
	if filter.CategoryID != "" {
		where = append(where, "category_id = "+arg(filter.CategoryID))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, "(name ILIKE "+p+" OR sku ILIKE "+p+")")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	return r.query(query, args...)
}

// ListByIDs возвращает товары в порядке ids; отсутствующие пропускаются.
func (r *productRepository) ListByIDs(ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	found, err := r.query(`SELECT `+productColumns+` FROM products WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	result := make([]domain.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			result = append(result, p)
			delete(byID, id)
		}
	}
	return result, nil
}

func (r *productRepository) query(query string, args ...any) ([]domain.Product, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.CampaignID,
		&p.PriceMinor, &p.Currency, &p.WeightGrams, &p.HeightCm, &p.WidthCm, &p.LengthCm,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Currency = strings.TrimSpace(p.Currency)
	return p, err
}

type categoryRepository struct {
	q dbtx
}

// NewCategoryRepository создаёт PostgreSQL-реализацию CategoryRepository.
func NewCategoryRepository(store *Store) domain.CategoryRepository {
	return &categoryRepository{q: store.DB()}
}

func (r *categoryRepository) Get(id string) (domain.Category, error) {
	ctx, cancel := opContext()
	defer cancel()

	var c domain.Category
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, slug, COALESCE(parent_id, '')
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return c, nil
}

func (r *categoryRepository) List() ([]domain.Category, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT id, name, slug, COALESCE(parent_id, '') FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

var (
	_ domain.ProductRepository  = (*productRepository)(nil)
	_ domain.CategoryRepository = (*categoryRepository)(nil)
)
