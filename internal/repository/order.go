package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promocode"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, items, subtotal, item_discount, code_discount, promo_code, shipping_cost, country, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	redeemPromoCodeSQL = `UPDATE promo_codes
		SET remaining = remaining - 1, valid = remaining - 1 > 0
		WHERE code = $1 AND valid AND remaining > 0`
)

var _ pricing.OrderRepository = (*OrderRepository)(nil)

// OrderRepository implements pricing.OrderRepository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository using the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithRedemption inserts the order and decrements the promo code's
// remaining count in one transaction. The insert uses ON CONFLICT DO
// NOTHING keyed on the order id, so re-committing the same order performs
// no second decrement. The decrement's WHERE guard doubles as an optimistic
// concurrency check: zero affected rows means the code is exhausted or a
// concurrent commit won the race, and the whole transaction rolls back.
func (r *OrderRepository) CreateWithRedemption(ctx context.Context, o *pricing.Order) (bool, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return false, fmt.Errorf("marshaling order items: %w", err)
	}

	inserted := false
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, createOrderSQL,
			o.ID, itemsJSON, o.Subtotal, o.ItemDiscount, o.CodeDiscount,
			o.PromoCode, o.ShippingCost, o.Country, o.Total, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil // already committed
		}
		inserted = true

		if o.PromoCode == "" {
			return nil
		}
		tag, err = tx.Exec(ctx, redeemPromoCodeSQL, o.PromoCode)
		if err != nil {
			return fmt.Errorf("redeeming promo code %q: %w", o.PromoCode, err)
		}
		if tag.RowsAffected() == 0 {
			return r.classifyRedemptionFailure(ctx, tx, o.PromoCode)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// classifyRedemptionFailure maps a failed decrement to the precise domain
// error: unknown code, exhausted count, or a lost concurrent race.
func (r *OrderRepository) classifyRedemptionFailure(ctx context.Context, tx pgx.Tx, code string) error {
	var (
		remaining int
		valid     bool
	)
	err := tx.QueryRow(ctx,
		`SELECT remaining, valid FROM promo_codes WHERE code = $1`, code,
	).Scan(&remaining, &valid)
	if errors.Is(err, pgx.ErrNoRows) {
		return promocode.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking promo code %q: %w", code, err)
	}
	if remaining <= 0 {
		return promocode.ErrExhausted
	}
	if !valid {
		return promocode.ErrExpired
	}
	return promocode.ErrConflict
}
