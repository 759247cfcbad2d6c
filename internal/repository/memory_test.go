package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/catalog"
	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/domain/shipping"
	"github.com/xenking/promo-engine/pkg/clock"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func newPromotion(id string, startsAt time.Time, endsAt *time.Time) *promotion.Promotion {
	return &promotion.Promotion{
		ID:          id,
		Description: "Test promotion",
		BrandID:     strPtr("brand-1"),
		Percentage:  20,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func TestPromotionSweep_ActivatesOpenEndedWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newPromotion("p1", testNow.Add(-2*time.Hour), nil)))

	sweeper, err := promotion.NewSweeper(store, clock.Fixed(testNow), notify.Nop{}, nil)
	require.NoError(t, err)
	require.NoError(t, sweeper.Sweep(ctx))

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.False(t, got.Deleted)
}

func TestPromotionSweep_ElapsedWindowStaysInactive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx,
		newPromotion("p1", testNow.Add(-2*time.Hour), timePtr(testNow.Add(-time.Hour)))))

	sweeper, err := promotion.NewSweeper(store, clock.Fixed(testNow), notify.Nop{}, nil)
	require.NoError(t, err)
	require.NoError(t, sweeper.Sweep(ctx))

	// The elapsed window is never activated; the expiration pass sweeps the
	// row straight into soft deletion.
	_, err = store.GetByID(ctx, "p1")
	require.ErrorIs(t, err, promotion.ErrNotFound)

	all, err := store.ListAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	assert.True(t, all[0].Deleted)
}

func TestPromotionSweep_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newPromotion("p1", testNow.Add(-2*time.Hour), nil)))
	require.NoError(t, store.Create(ctx,
		newPromotion("p2", testNow.Add(-2*time.Hour), timePtr(testNow.Add(-time.Hour)))))

	sweeper, err := promotion.NewSweeper(store, clock.Fixed(testNow), notify.Nop{}, nil)
	require.NoError(t, err)

	n, err := sweeper.ActivateDueSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = sweeper.ExpireDueSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Second pass at the same instant changes nothing.
	n, err = sweeper.ActivateDueSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = sweeper.ExpireDueSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPromotionSweep_ExpiresActivePromotionLater(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx,
		newPromotion("p1", testNow.Add(-time.Hour), timePtr(testNow.Add(time.Hour)))))

	first, err := promotion.NewSweeper(store, clock.Fixed(testNow), notify.Nop{}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Sweep(ctx))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// Two hours later the window has closed.
	second, err := promotion.NewSweeper(store, clock.Fixed(testNow.Add(2*time.Hour)), notify.Nop{}, nil)
	require.NoError(t, err)
	require.NoError(t, second.Sweep(ctx))

	active, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPromotionSetActiveAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newPromotion("p1", testNow, nil)))

	require.NoError(t, store.SetActive(ctx, "p1", true))
	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, store.SoftDelete(ctx, "p1"))
	active, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.ErrorIs(t, store.SetActive(ctx, "p1", true), promotion.ErrNotFound)
	require.ErrorIs(t, store.SoftDelete(ctx, "missing"), promotion.ErrNotFound)
}

func TestShippingSweep_DetachesExpiredDiscount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateCountry(ctx, &shipping.Country{ID: "c1", Name: "Bulgaria"}))
	require.NoError(t, store.AttachToCountry(ctx, "Bulgaria", &shipping.ShippingDiscount{
		ID:            "sd1",
		Description:   "Free shipping week",
		Percentage:    100,
		MinOrderPrice: decimal.NewFromInt(50),
		EndsAt:        timePtr(testNow.Add(-time.Minute)),
		CreatedAt:     testNow.Add(-time.Hour),
	}))

	sweeper, err := shipping.NewSweeper(store, clock.Fixed(testNow), notify.Nop{}, nil)
	require.NoError(t, err)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.ActiveForCountry(ctx, "Bulgaria")
	require.ErrorIs(t, err, shipping.ErrNotFound)

	// The country is free for a new discount after the sweep.
	require.NoError(t, store.AttachToCountry(ctx, "Bulgaria", &shipping.ShippingDiscount{
		ID:            "sd2",
		Description:   "Replacement deal",
		Percentage:    50,
		MinOrderPrice: decimal.NewFromInt(50),
		CreatedAt:     testNow,
	}))
}

func TestShippingAttach_OneDiscountPerCountry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateCountry(ctx, &shipping.Country{ID: "c1", Name: "Bulgaria"}))
	require.ErrorIs(t, store.CreateCountry(ctx, &shipping.Country{ID: "c2", Name: "Bulgaria"}),
		shipping.ErrCountryExists)

	d := func(id string) *shipping.ShippingDiscount {
		return &shipping.ShippingDiscount{
			ID: id, Description: "Deal", Percentage: 10,
			MinOrderPrice: decimal.NewFromInt(10), CreatedAt: testNow,
		}
	}
	require.NoError(t, store.AttachToCountry(ctx, "Bulgaria", d("sd1")))
	require.ErrorIs(t, store.AttachToCountry(ctx, "Bulgaria", d("sd2")), shipping.ErrDiscountExists)
	require.ErrorIs(t, store.AttachToCountry(ctx, "Atlantis", d("sd3")), shipping.ErrCountryNotFound)
}

func TestBrandCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateBrand(ctx, &catalog.Brand{ID: "brand-1", Name: "Acme"}))
	require.NoError(t, store.CreateBrand(ctx, &catalog.Brand{ID: "brand-2", Name: "Globex"}))
	require.NoError(t, store.CreateProduct(ctx, &catalog.Product{
		ID: "prod-1", Name: "Widget", BrandID: "brand-1", Price: decimal.NewFromInt(10),
	}))
	require.NoError(t, store.CreateProduct(ctx, &catalog.Product{
		ID: "prod-2", Name: "Gadget", BrandID: "brand-2", Price: decimal.NewFromInt(10),
	}))
	require.NoError(t, store.Create(ctx, newPromotion("promo-1", testNow, nil)))

	res, err := store.RemoveBrandCascade(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Products)
	assert.Equal(t, int64(1), res.Promotions)

	_, err = store.BrandByName(ctx, "Acme")
	require.ErrorIs(t, err, catalog.ErrBrandNotFound)

	// Unrelated rows survive.
	products, err := store.ProductsByIDs(ctx, []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prod-2", products[0].ID)

	_, err = store.RemoveBrandCascade(ctx, "Acme")
	require.ErrorIs(t, err, catalog.ErrBrandNotFound)
}

func TestCategoryCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateBrand(ctx, &catalog.Brand{ID: "brand-1", Name: "Acme"}))
	require.NoError(t, store.CreateCategory(ctx, &catalog.Category{ID: "cat-1", Name: "Protein"}))
	require.NoError(t, store.CreateCategory(ctx, &catalog.Category{ID: "cat-2", Name: "Vegan"}))
	require.NoError(t, store.CreateProduct(ctx, &catalog.Product{
		ID: "prod-only", Name: "Whey", BrandID: "brand-1",
		CategoryIDs: []string{"cat-1"}, Price: decimal.NewFromInt(10),
	}))
	require.NoError(t, store.CreateProduct(ctx, &catalog.Product{
		ID: "prod-both", Name: "Pea protein", BrandID: "brand-1",
		CategoryIDs: []string{"cat-1", "cat-2"}, Price: decimal.NewFromInt(10),
	}))
	promo := newPromotion("promo-1", testNow, nil)
	promo.BrandID = nil
	promo.CategoryID = strPtr("cat-1")
	require.NoError(t, store.Create(ctx, promo))

	res, err := store.RemoveCategoryCascade(ctx, "Protein")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Products, "only the single-category product goes")
	assert.Equal(t, int64(1), res.Promotions)

	products, err := store.ProductsByIDs(ctx, []string{"prod-only", "prod-both"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prod-both", products[0].ID)
	assert.Equal(t, []string{"cat-2"}, products[0].CategoryIDs)
}

func TestAdjustStock_ClampsAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateBrand(ctx, &catalog.Brand{ID: "brand-1", Name: "Acme"}))
	require.NoError(t, store.CreateProduct(ctx, &catalog.Product{
		ID: "prod-1", Name: "Widget", BrandID: "brand-1", Price: decimal.NewFromInt(10), Stock: 3,
	}))

	left, err := store.AdjustStock(ctx, "prod-1", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = store.AdjustStock(ctx, "missing", -1)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCreateWithRedemption(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.PromoCodes().Create(ctx, &promocode.PromoCode{
		ID: "pc1", Code: "TENPCOFF", Description: "Test", Percentage: 10,
		Remaining: 1, Valid: true, CreatedAt: testNow,
	}))

	order := &pricing.Order{ID: "order-1", PromoCode: "TENPCOFF", Total: decimal.NewFromInt(90)}
	inserted, err := store.CreateWithRedemption(ctx, order)
	require.NoError(t, err)
	assert.True(t, inserted)

	c, err := store.FindByCode(ctx, "TENPCOFF")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Remaining)
	assert.False(t, c.Valid, "last redemption flips the code invalid")

	// Same order id again is a no-op.
	inserted, err = store.CreateWithRedemption(ctx, order)
	require.NoError(t, err)
	assert.False(t, inserted)

	// A different order can no longer redeem the code.
	_, err = store.CreateWithRedemption(ctx, &pricing.Order{ID: "order-2", PromoCode: "TENPCOFF"})
	require.ErrorIs(t, err, promocode.ErrExhausted)

	_, err = store.CreateWithRedemption(ctx, &pricing.Order{ID: "order-3", PromoCode: "NOSUCHCD"})
	require.ErrorIs(t, err, promocode.ErrNotFound)
}

func TestInvalidateOlderThan_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	codes := store.PromoCodes()
	require.NoError(t, codes.Create(ctx, &promocode.PromoCode{
		ID: "pc1", Code: "OLDCODES", Remaining: 1, Valid: true, CreatedAt: testNow.Add(-100 * 24 * time.Hour),
	}))
	require.NoError(t, codes.Create(ctx, &promocode.PromoCode{
		ID: "pc2", Code: "FRESHONE", Remaining: 1, Valid: true, CreatedAt: testNow,
	}))

	cutoff := testNow.Add(-90 * 24 * time.Hour)
	n, err := codes.InvalidateOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = codes.InvalidateOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	old, err := store.FindByCode(ctx, "OLDCODES")
	require.NoError(t, err)
	assert.False(t, old.Valid)
	fresh, err := store.FindByCode(ctx, "FRESHONE")
	require.NoError(t, err)
	assert.True(t, fresh.Valid)
}
