package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/shipping"
)

const (
	createCountrySQL = `INSERT INTO countries (id, name, discount_id) VALUES ($1, $2, $3)`

	getCountryByNameSQL = `SELECT id, name, discount_id FROM countries WHERE name = $1`

	createShippingDiscountSQL = `INSERT INTO shipping_discounts
		(id, description, percentage, min_order_price, ends_at, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

	attachDiscountSQL = `UPDATE countries SET discount_id = $2 WHERE id = $1`

	activeDiscountForCountrySQL = `SELECT d.id, d.description, d.percentage, d.min_order_price,
		d.ends_at, d.deleted, d.created_at
		FROM countries c JOIN shipping_discounts d ON d.id = c.discount_id
		WHERE c.name = $1 AND NOT d.deleted`

	expireDueDiscountsSQL = `UPDATE shipping_discounts SET deleted = TRUE
		WHERE NOT deleted AND ends_at IS NOT NULL AND ends_at <= $1
		RETURNING id`

	detachExpiredDiscountsSQL = `UPDATE countries SET discount_id = NULL
		WHERE discount_id = ANY($1)`
)

var _ shipping.Repository = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository using the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// CreateCountry persists a new shipping destination.
func (r *ShippingRepository) CreateCountry(ctx context.Context, c *shipping.Country) error {
	_, err := r.pool.Exec(ctx, createCountrySQL, c.ID, c.Name, c.DiscountID)
	if err != nil {
		if isUniqueViolation(err) {
			return shipping.ErrCountryExists
		}
		return fmt.Errorf("creating country %q: %w", c.Name, err)
	}
	return nil
}

// AttachToCountry persists the discount and attaches it to the named
// country in one transaction. The country row is locked for the duration
// so a concurrent attach or sweep cannot slip in between the check and the
// update.
func (r *ShippingRepository) AttachToCountry(ctx context.Context, countryName string, d *shipping.ShippingDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			countryID  string
			discountID *string
		)
		err := tx.QueryRow(ctx,
			`SELECT c.id, c.discount_id FROM countries c WHERE c.name = $1 FOR UPDATE`,
			countryName,
		).Scan(&countryID, &discountID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shipping.ErrCountryNotFound
			}
			return fmt.Errorf("locking country %q: %w", countryName, err)
		}

		if discountID != nil {
			var deleted bool
			err := tx.QueryRow(ctx,
				`SELECT deleted FROM shipping_discounts WHERE id = $1`, *discountID,
			).Scan(&deleted)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("checking existing discount: %w", err)
			}
			if err == nil && !deleted {
				return shipping.ErrDiscountExists
			}
		}

		if _, err := tx.Exec(ctx, createShippingDiscountSQL,
			d.ID, d.Description, d.Percentage, d.MinOrderPrice, d.EndsAt, d.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating shipping discount %q: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, attachDiscountSQL, countryID, d.ID); err != nil {
			return fmt.Errorf("attaching discount to country %q: %w", countryName, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shipping.ErrCountryNotFound) || errors.Is(err, shipping.ErrDiscountExists) {
			return err
		}
		return fmt.Errorf("attach shipping discount: %w", err)
	}
	return nil
}

// ActiveForCountry returns the country's active shipping discount.
func (r *ShippingRepository) ActiveForCountry(ctx context.Context, countryName string) (*shipping.ShippingDiscount, error) {
	rows, err := r.pool.Query(ctx, activeDiscountForCountrySQL, countryName)
	if err != nil {
		return nil, fmt.Errorf("finding shipping discount for %q: %w", countryName, err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanShippingDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMissing(ctx, countryName)
		}
		return nil, fmt.Errorf("finding shipping discount for %q: %w", countryName, err)
	}
	return &d, nil
}

// classifyMissing distinguishes an unknown country from a country without
// an active discount.
func (r *ShippingRepository) classifyMissing(ctx context.Context, countryName string) error {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM countries WHERE name = $1`, countryName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shipping.ErrCountryNotFound
	}
	if err != nil {
		return fmt.Errorf("checking country %q: %w", countryName, err)
	}
	return shipping.ErrNotFound
}

// ExpireDiscountsDue soft-deletes every due discount and clears the owning
// countries' references in the same transaction, so no country is ever
// left pointing at a deleted discount.
func (r *ShippingRepository) ExpireDiscountsDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, expireDueDiscountsSQL, now)
		if err != nil {
			return fmt.Errorf("expiring shipping discounts: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collecting expired discount ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, detachExpiredDiscountsSQL, ids); err != nil {
			return fmt.Errorf("detaching expired discounts: %w", err)
		}
		n = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func scanShippingDiscount(row pgx.CollectableRow) (shipping.ShippingDiscount, error) {
	var d shipping.ShippingDiscount
	err := row.Scan(
		&d.ID, &d.Description, &d.Percentage, &d.MinOrderPrice,
		&d.EndsAt, &d.Deleted, &d.CreatedAt,
	)
	return d, err
}
