// Package promocode holds the single-use promo code entity, its generator,
// and the cleanup sweeper that invalidates aged codes.
package promocode

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a code is unknown.
	ErrNotFound = errors.New("invalid promo code")
	// ErrExhausted is returned when a code's redemption count reached zero.
	ErrExhausted = errors.New("promo code exhausted")
	// ErrExpired is returned when a code outlived the max-age policy.
	ErrExpired = errors.New("promo code expired")
	// ErrConflict is returned when a concurrent redemption won the race for
	// the same code.
	ErrConflict = errors.New("promo code was redeemed concurrently")
	// ErrDuplicateCode is returned by Repository.Create on a code collision.
	ErrDuplicateCode = errors.New("promo code already exists")
	// ErrInvalidPercentage is returned when the discount percentage is
	// outside the 0-100 range.
	ErrInvalidPercentage = errors.New("discount percentage must be between 0 and 100")
	// ErrInvalidUses is returned when the initial redemption count is not
	// positive.
	ErrInvalidUses = errors.New("redemption count must be greater than 0")
)

// DefaultMaxAge is how long a code stays redeemable after creation unless
// configured otherwise.
const DefaultMaxAge = 90 * 24 * time.Hour

// PromoCode is a count-limited discount code applied at checkout. The Valid
// flag is monotonic: once false it never becomes true again.
type PromoCode struct {
	ID          string
	Code        string
	Description string
	Percentage  int
	Remaining   int
	Valid       bool
	CreatedAt   time.Time
}

// AgedOut reports whether the code is older than maxAge at the given instant.
func (c *PromoCode) AgedOut(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.CreatedAt) > maxAge
}

// Repository defines persistence operations for promo codes.
type Repository interface {
	// Create persists a new code. Returns ErrDuplicateCode when the
	// generated code string is already taken.
	Create(ctx context.Context, c *PromoCode) error
	// FindByCode looks a code up by its code string. Returns ErrNotFound
	// when absent.
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	// InvalidateOlderThan marks every still-valid code created before the
	// cutoff as invalid, returning the number of rows changed. Invalidation
	// is one-way: the sweep never resurrects a code.
	InvalidateOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
