package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

const (
	createPromotionSQL = `INSERT INTO promotions
		(id, description, brand_id, category_id, percentage, starts_at, ends_at, active, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`

	getPromotionSQL = `SELECT id, description, brand_id, category_id, percentage,
		starts_at, ends_at, active, deleted, created_at
		FROM promotions WHERE id = $1 AND NOT deleted`

	listActivePromotionsSQL = `SELECT id, description, brand_id, category_id, percentage,
		starts_at, ends_at, active, deleted, created_at
		FROM promotions WHERE active AND NOT deleted`

	listAllPromotionsSQL = `SELECT id, description, brand_id, category_id, percentage,
		starts_at, ends_at, active, deleted, created_at
		FROM promotions WHERE NOT deleted OR $1`

	activateDuePromotionsSQL = `UPDATE promotions SET active = TRUE
		WHERE NOT active AND NOT deleted AND starts_at <= $1
		AND (ends_at IS NULL OR ends_at > $1)`

	expireDuePromotionsSQL = `UPDATE promotions SET active = FALSE, deleted = TRUE
		WHERE NOT deleted AND ends_at IS NOT NULL AND ends_at <= $1`

	setPromotionActiveSQL = `UPDATE promotions SET active = $2 WHERE id = $1 AND NOT deleted`

	softDeletePromotionSQL = `UPDATE promotions SET active = FALSE, deleted = TRUE
		WHERE id = $1 AND NOT deleted`

	deletePromotionsByTargetSQL = `DELETE FROM promotions
		WHERE ($1 <> '' AND brand_id = $1) OR ($2 <> '' AND category_id = $2)`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository using the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Create validates and persists a scheduled promotion.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, createPromotionSQL,
		p.ID, p.Description, p.BrandID, p.CategoryID, p.Percentage,
		p.StartsAt, p.EndsAt, p.Active, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.ID, err)
	}
	return nil
}

// GetByID returns the promotion, excluding soft-deleted rows.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion %q: %w", id, err)
	}
	return &p, nil
}

// ListActive returns every promotion currently flagged active.
func (r *PromotionRepository) ListActive(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return out, nil
}

// ListAll returns every promotion, optionally including soft-deleted rows.
func (r *PromotionRepository) ListAll(ctx context.Context, includeDeleted bool) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listAllPromotionsSQL, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return out, nil
}

// ActivateDue flips Active on for every promotion due at the given instant.
func (r *PromotionRepository) ActivateDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, activateDuePromotionsSQL, now)
	if err != nil {
		return 0, fmt.Errorf("activating due promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireDue deactivates and soft-deletes every promotion past its end date.
func (r *PromotionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireDuePromotionsSQL, now)
	if err != nil {
		return 0, fmt.Errorf("expiring due promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetActive is the explicit admin status toggle.
func (r *PromotionRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, setPromotionActiveSQL, id, active)
	if err != nil {
		return fmt.Errorf("toggling promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// SoftDelete marks the promotion deleted.
func (r *PromotionRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, softDeletePromotionSQL, id)
	if err != nil {
		return fmt.Errorf("soft-deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// DeleteByTarget hard-deletes promotions referencing the brand or category.
func (r *PromotionRepository) DeleteByTarget(ctx context.Context, brandID, categoryID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, deletePromotionsByTargetSQL, brandID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("deleting promotions by target: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var p promotion.Promotion
	err := row.Scan(
		&p.ID, &p.Description, &p.BrandID, &p.CategoryID, &p.Percentage,
		&p.StartsAt, &p.EndsAt, &p.Active, &p.Deleted, &p.CreatedAt,
	)
	return p, err
}
