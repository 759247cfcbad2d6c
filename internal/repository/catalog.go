package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/catalog"
)

const (
	createBrandSQL    = `INSERT INTO brands (id, name) VALUES ($1, $2)`
	createCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)`

	createProductSQL = `INSERT INTO products (id, name, brand_id, price, stock)
		VALUES ($1, $2, $3, $4, $5)`
	createProductCategorySQL = `INSERT INTO product_categories (product_id, category_id)
		VALUES ($1, $2)`

	brandByNameSQL    = `SELECT id, name FROM brands WHERE name = $1`
	categoryByNameSQL = `SELECT id, name FROM categories WHERE name = $1`

	productsByIDsSQL = `SELECT p.id, p.name, p.brand_id, p.price, p.stock,
		COALESCE(array_agg(pc.category_id) FILTER (WHERE pc.category_id IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		WHERE p.id = ANY($1)
		GROUP BY p.id`

	adjustStockSQL = `UPDATE products SET stock = GREATEST(stock + $2, 0)
		WHERE id = $1 RETURNING stock`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
// Cascading removals run inside a single transaction so a partial failure
// leaves no product or promotion referencing a deleted brand or category.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository using the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// CreateBrand persists a new brand with a unique name.
func (r *CatalogRepository) CreateBrand(ctx context.Context, b *catalog.Brand) error {
	_, err := r.pool.Exec(ctx, createBrandSQL, b.ID, b.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrBrandExists
		}
		return fmt.Errorf("creating brand %q: %w", b.Name, err)
	}
	return nil
}

// CreateCategory persists a new category with a unique name.
func (r *CatalogRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := r.pool.Exec(ctx, createCategorySQL, c.ID, c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrCategoryExists
		}
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// CreateProduct persists a product and its category junction rows.
func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createProductSQL, p.ID, p.Name, p.BrandID, p.Price, p.Stock); err != nil {
			return fmt.Errorf("creating product %q: %w", p.ID, err)
		}
		for _, cid := range p.CategoryIDs {
			if _, err := tx.Exec(ctx, createProductCategorySQL, p.ID, cid); err != nil {
				return fmt.Errorf("linking product %q to category %q: %w", p.ID, cid, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// BrandByName looks a brand up by name.
func (r *CatalogRepository) BrandByName(ctx context.Context, name string) (*catalog.Brand, error) {
	var b catalog.Brand
	err := r.pool.QueryRow(ctx, brandByNameSQL, name).Scan(&b.ID, &b.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrBrandNotFound
		}
		return nil, fmt.Errorf("finding brand %q: %w", name, err)
	}
	return &b, nil
}

// CategoryByName looks a category up by name.
func (r *CatalogRepository) CategoryByName(ctx context.Context, name string) (*catalog.Category, error) {
	var c catalog.Category
	err := r.pool.QueryRow(ctx, categoryByNameSQL, name).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("finding category %q: %w", name, err)
	}
	return &c, nil
}

// ProductsByIDs returns the products for the given ids in a single query.
func (r *CatalogRepository) ProductsByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, productsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(&p.ID, &p.Name, &p.BrandID, &p.Price, &p.Stock, &p.CategoryIDs)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return out, nil
}

// AdjustStock changes a product's stock by delta, clamping at zero.
func (r *CatalogRepository) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, adjustStockSQL, productID, delta).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, catalog.ErrProductNotFound
		}
		return 0, fmt.Errorf("adjusting stock for %q: %w", productID, err)
	}
	return stock, nil
}

// RemoveBrandCascade deletes the brand, its products, and the promotions
// targeting it, all in one transaction.
func (r *CatalogRepository) RemoveBrandCascade(ctx context.Context, name string) (catalog.CascadeResult, error) {
	var res catalog.CascadeResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var brandID string
		err := tx.QueryRow(ctx, `SELECT id FROM brands WHERE name = $1 FOR UPDATE`, name).Scan(&brandID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrBrandNotFound
			}
			return fmt.Errorf("locking brand %q: %w", name, err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE brand_id = $1`, brandID)
		if err != nil {
			return fmt.Errorf("deleting products of brand %q: %w", name, err)
		}
		res.Products = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM promotions WHERE brand_id = $1`, brandID)
		if err != nil {
			return fmt.Errorf("deleting promotions of brand %q: %w", name, err)
		}
		res.Promotions = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM brands WHERE id = $1`, brandID); err != nil {
			return fmt.Errorf("deleting brand %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, catalog.ErrBrandNotFound) {
			return catalog.CascadeResult{}, catalog.ErrBrandNotFound
		}
		return catalog.CascadeResult{}, fmt.Errorf("remove brand cascade: %w", err)
	}
	return res, nil
}

// RemoveCategoryCascade deletes the category, its junction rows, products
// left without any category, and the promotions targeting it, all in one
// transaction.
func (r *CatalogRepository) RemoveCategoryCascade(ctx context.Context, name string) (catalog.CascadeResult, error) {
	var res catalog.CascadeResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var categoryID string
		err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1 FOR UPDATE`, name).Scan(&categoryID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrCategoryNotFound
			}
			return fmt.Errorf("locking category %q: %w", name, err)
		}

		// Junction cleanup first, then remove the affected products whose
		// only category association was the removed one.
		rows, err := tx.Query(ctx,
			`DELETE FROM product_categories WHERE category_id = $1 RETURNING product_id`, categoryID,
		)
		if err != nil {
			return fmt.Errorf("cleaning junction rows for category %q: %w", name, err)
		}
		affected, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collecting affected products for category %q: %w", name, err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM products p WHERE p.id = ANY($1)
			AND NOT EXISTS (SELECT 1 FROM product_categories pc WHERE pc.product_id = p.id)`,
			affected)
		if err != nil {
			return fmt.Errorf("deleting orphaned products of category %q: %w", name, err)
		}
		res.Products = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM promotions WHERE category_id = $1`, categoryID)
		if err != nil {
			return fmt.Errorf("deleting promotions of category %q: %w", name, err)
		}
		res.Promotions = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, categoryID); err != nil {
			return fmt.Errorf("deleting category %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, catalog.ErrCategoryNotFound) {
			return catalog.CascadeResult{}, catalog.ErrCategoryNotFound
		}
		return catalog.CascadeResult{}, fmt.Errorf("remove category cascade: %w", err)
	}
	return res, nil
}
