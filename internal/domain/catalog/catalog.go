// Package catalog holds brands, categories, products, and the coordinator
// that cascades brand/category deletion across dependent entities.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrBrandNotFound is returned when the named brand does not exist.
	ErrBrandNotFound = errors.New("invalid brand name")
	// ErrCategoryNotFound is returned when the named category does not exist.
	ErrCategoryNotFound = errors.New("invalid category name")
	// ErrProductNotFound is returned when no product exists for the given id.
	ErrProductNotFound = errors.New("product not found")
	// ErrBrandExists is returned when a brand with the same name exists.
	ErrBrandExists = errors.New("brand already exists")
	// ErrCategoryExists is returned when a category with the same name exists.
	ErrCategoryExists = errors.New("category already exists")
)

// Brand is a product manufacturer.
type Brand struct {
	ID   string
	Name string
}

// Category groups products; a product may belong to several categories
// through a junction relation.
type Category struct {
	ID   string
	Name string
}

// Product is a purchasable catalog item.
type Product struct {
	ID          string
	Name        string
	BrandID     string
	CategoryIDs []string
	Price       decimal.Decimal
	Stock       int
}

// CascadeResult reports what a cascading removal deleted alongside the
// brand or category itself.
type CascadeResult struct {
	Products   int64
	Promotions int64
}

// Repository defines persistence operations for the catalog.
type Repository interface {
	CreateBrand(ctx context.Context, b *Brand) error
	CreateCategory(ctx context.Context, c *Category) error
	CreateProduct(ctx context.Context, p *Product) error
	BrandByName(ctx context.Context, name string) (*Brand, error)
	CategoryByName(ctx context.Context, name string) (*Category, error)
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock changes a product's stock by delta and returns the new
	// stock level.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	// RemoveBrandCascade atomically deletes the named brand, every product
	// of that brand, and every promotion targeting it. Returns
	// ErrBrandNotFound when the brand does not exist; partial failures roll
	// back the whole operation.
	RemoveBrandCascade(ctx context.Context, name string) (CascadeResult, error)
	// RemoveCategoryCascade atomically deletes the named category, its
	// product associations, every product whose only category was the
	// removed one, and every promotion targeting the category. Returns
	// ErrCategoryNotFound when the category does not exist.
	RemoveCategoryCascade(ctx context.Context, name string) (CascadeResult, error)
}
