// Package promotion holds the brand/category promotion entity and its
// lifecycle state machine.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no promotion exists for the given id.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidPercentage is returned when the discount percentage is
	// outside the 0-100 range.
	ErrInvalidPercentage = errors.New("discount percentage must be between 0 and 100")
	// ErrMissingTarget is returned when a promotion references neither a
	// brand nor a category.
	ErrMissingTarget = errors.New("promotion requires a brand or a category")
	// ErrDescriptionLength is returned when the description is outside the
	// accepted length bounds.
	ErrDescriptionLength = errors.New("description must be between 3 and 250 characters")
)

// Promotion is a percentage discount tied to a brand and/or category,
// active within a time window. A nil EndsAt means the promotion runs
// indefinitely once activated.
type Promotion struct {
	ID          string
	Description string
	BrandID     *string
	CategoryID  *string
	Percentage  int
	StartsAt    time.Time
	EndsAt      *time.Time
	Active      bool
	Deleted     bool
	CreatedAt   time.Time
}

// Validate checks the invariants enforced at creation time.
func (p *Promotion) Validate() error {
	if p.Percentage < 0 || p.Percentage > 100 {
		return ErrInvalidPercentage
	}
	if p.BrandID == nil && p.CategoryID == nil {
		return ErrMissingTarget
	}
	if n := len(p.Description); n < 3 || n > 250 {
		return ErrDescriptionLength
	}
	return nil
}

// DueForActivation reports whether the promotion should be switched on at
// the given instant: scheduled start has passed, the end date (if any) has
// not, and the promotion is neither active nor soft-deleted.
func (p *Promotion) DueForActivation(now time.Time) bool {
	if p.Active || p.Deleted {
		return false
	}
	if p.StartsAt.After(now) {
		return false
	}
	return p.EndsAt == nil || p.EndsAt.After(now)
}

// DueForExpiration reports whether the promotion's end date has passed.
// Expiration applies regardless of the Active flag so that a promotion
// created with an already-elapsed window is still swept away.
func (p *Promotion) DueForExpiration(now time.Time) bool {
	return !p.Deleted && p.EndsAt != nil && !p.EndsAt.After(now)
}

// Repository defines persistence operations for promotions. Queries exclude
// soft-deleted rows unless stated otherwise.
type Repository interface {
	Create(ctx context.Context, p *Promotion) error
	GetByID(ctx context.Context, id string) (*Promotion, error)
	// ListActive returns every promotion currently flagged active.
	ListActive(ctx context.Context) ([]Promotion, error)
	// ListAll returns every promotion, optionally including soft-deleted
	// rows. Used by cleanup diagnostics.
	ListAll(ctx context.Context, includeDeleted bool) ([]Promotion, error)
	// ActivateDue flips Active on for every promotion due for activation at
	// the given instant and returns the number of rows changed.
	ActivateDue(ctx context.Context, now time.Time) (int64, error)
	// ExpireDue flips Active off and soft-deletes every promotion whose end
	// date has passed, returning the number of rows changed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// SetActive is the explicit admin status toggle.
	SetActive(ctx context.Context, id string, active bool) error
	SoftDelete(ctx context.Context, id string) error
	// DeleteByTarget hard-deletes every promotion referencing the given
	// brand or category id. Used by cascade deletion.
	DeleteByTarget(ctx context.Context, brandID, categoryID string) (int64, error)
}
