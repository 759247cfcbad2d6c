package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/promocode"
)

const (
	createPromoCodeSQL = `INSERT INTO promo_codes
		(id, code, description, percentage, remaining, valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getPromoCodeSQL = `SELECT id, code, description, percentage, remaining, valid, created_at
		FROM promo_codes WHERE code = $1`

	invalidateAgedCodesSQL = `UPDATE promo_codes SET valid = FALSE
		WHERE valid AND created_at < $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ promocode.Repository = (*PromoCodeRepository)(nil)

// PromoCodeRepository implements promocode.Repository backed by PostgreSQL.
type PromoCodeRepository struct {
	pool *pgxpool.Pool
}

// NewPromoCodeRepository returns a PromoCodeRepository using the given pool.
func NewPromoCodeRepository(pool *pgxpool.Pool) *PromoCodeRepository {
	return &PromoCodeRepository{pool: pool}
}

// Create persists a new promo code. A unique violation on the code column
// maps to promocode.ErrDuplicateCode so the issuing service can retry with
// a fresh code.
func (r *PromoCodeRepository) Create(ctx context.Context, c *promocode.PromoCode) error {
	_, err := r.pool.Exec(ctx, createPromoCodeSQL,
		c.ID, c.Code, c.Description, c.Percentage, c.Remaining, c.Valid, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promocode.ErrDuplicateCode
		}
		return fmt.Errorf("creating promo code %q: %w", c.ID, err)
	}
	return nil
}

// FindByCode looks a promo code up by its code string.
func (r *PromoCodeRepository) FindByCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	rows, err := r.pool.Query(ctx, getPromoCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promocode.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &c, nil
}

// InvalidateOlderThan marks every still-valid code created before the
// cutoff as invalid.
func (r *PromoCodeRepository) InvalidateOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, invalidateAgedCodesSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("invalidating aged promo codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPromoCode(row pgx.CollectableRow) (promocode.PromoCode, error) {
	var c promocode.PromoCode
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.Percentage, &c.Remaining, &c.Valid, &c.CreatedAt,
	)
	return c, err
}
