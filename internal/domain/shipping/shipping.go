// Package shipping holds country-scoped shipping discounts and the sweeper
// that expires them.
package shipping

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a country has no active shipping discount.
	ErrNotFound = errors.New("shipping discount not found")
	// ErrCountryNotFound is returned when the country itself is unknown.
	ErrCountryNotFound = errors.New("invalid country name")
	// ErrDiscountExists is returned when a country already has a
	// non-deleted shipping discount attached.
	ErrDiscountExists = errors.New("country already has a shipping discount")
	// ErrCountryExists is returned when a country with the same name
	// already exists.
	ErrCountryExists = errors.New("country already exists")
	// ErrInvalidPercentage is returned when the discount percentage is
	// outside the 0-100 range.
	ErrInvalidPercentage = errors.New("discount percentage must be between 0 and 100")
)

// ShippingDiscount reduces shipping cost for orders above a minimum
// subtotal, scoped to exactly one country at a time.
type ShippingDiscount struct {
	ID            string
	Description   string
	Percentage    int
	MinOrderPrice decimal.Decimal
	EndsAt        *time.Time
	Deleted       bool
	CreatedAt     time.Time
}

// Validate checks the invariants enforced at creation time.
func (d *ShippingDiscount) Validate() error {
	if d.Percentage < 0 || d.Percentage > 100 {
		return ErrInvalidPercentage
	}
	return nil
}

// DueForExpiration reports whether the discount's end date has passed.
func (d *ShippingDiscount) DueForExpiration(now time.Time) bool {
	return !d.Deleted && d.EndsAt != nil && !d.EndsAt.After(now)
}

// Qualifies reports whether an order subtotal meets the minimum price
// threshold for this discount.
func (d *ShippingDiscount) Qualifies(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(d.MinOrderPrice)
}

// Country is a shipping destination. DiscountID references the country's
// single active shipping discount, or is nil.
type Country struct {
	ID         string
	Name       string
	DiscountID *string
}

// Repository defines persistence operations for shipping discounts and
// their country attachments.
type Repository interface {
	CreateCountry(ctx context.Context, c *Country) error
	// AttachToCountry persists the discount and attaches it to the named
	// country. Returns ErrCountryNotFound when the country is unknown and
	// ErrDiscountExists when the country already has an active discount.
	AttachToCountry(ctx context.Context, countryName string, d *ShippingDiscount) error
	// ActiveForCountry returns the country's active discount, ErrNotFound
	// when there is none, or ErrCountryNotFound for an unknown country.
	ActiveForCountry(ctx context.Context, countryName string) (*ShippingDiscount, error)
	// ExpireDiscountsDue soft-deletes every discount whose end date has passed and
	// clears the owning countries' references in the same transaction, so a
	// Country never references a deleted discount. Returns the number of
	// discounts expired.
	ExpireDiscountsDue(ctx context.Context, now time.Time) (int64, error)
}
