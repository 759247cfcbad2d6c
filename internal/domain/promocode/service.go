package promocode

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/promo-engine/pkg/clock"
)

// issueRetries bounds the collision retry loop when generating a new code.
const issueRetries = 5

// Service issues and validates promo codes. The redemption decrement itself
// is owned by the order commit transaction, not by this service.
type Service struct {
	repo   Repository
	clock  clock.Clock
	maxAge time.Duration
}

// NewService creates a promo code Service. A non-positive maxAge falls back
// to DefaultMaxAge.
func NewService(repo Repository, clk clock.Clock, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{repo: repo, clock: clk, maxAge: maxAge}
}

// Issue creates a new promo code with a collision-free generated code
// string and the given initial redemption count.
func (s *Service) Issue(ctx context.Context, description string, percentage, uses int) (*PromoCode, error) {
	if percentage < 0 || percentage > 100 {
		return nil, ErrInvalidPercentage
	}
	if uses <= 0 {
		return nil, ErrInvalidUses
	}

	for range issueRetries {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		c := &PromoCode{
			ID:          uuid.New().String(),
			Code:        code,
			Description: description,
			Percentage:  percentage,
			Remaining:   uses,
			Valid:       true,
			CreatedAt:   s.clock.Now(),
		}
		err = s.repo.Create(ctx, c)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "store promo code")
		}
		return c, nil
	}
	return nil, errors.New("could not generate a unique promo code")
}

// Validate looks up a code and checks it can still be redeemed. It performs
// no writes, so it is safe for quote/preview calls.
func (s *Service) Validate(ctx context.Context, code string) (*PromoCode, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}
	if c.Remaining <= 0 {
		return nil, ErrExhausted
	}
	if !c.Valid || c.AgedOut(s.clock.Now(), s.maxAge) {
		return nil, ErrExpired
	}
	return c, nil
}
