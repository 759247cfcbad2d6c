package repository

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/promo-engine/internal/domain/catalog"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/domain/shipping"
)

// MemoryStore is an in-memory implementation of every repository contract.
// It satisfies the same query semantics as the PostgreSQL repositories,
// including soft-delete filtering and atomic order-plus-redemption commits,
// and is the storage backend used by the test suites.
type MemoryStore struct {
	mu sync.RWMutex

	promotions map[string]*promotion.Promotion
	codes      map[string]*promocode.PromoCode // keyed by code string
	discounts  map[string]*shipping.ShippingDiscount
	countries  map[string]*shipping.Country // keyed by country name
	brands     map[string]*catalog.Brand
	categories map[string]*catalog.Category
	products   map[string]*catalog.Product
	orders     map[string]*pricing.Order
}

var (
	_ promotion.Repository    = (*MemoryStore)(nil)
	_ promocode.Repository    = memoryCodeRepo{}
	_ shipping.Repository     = (*MemoryStore)(nil)
	_ catalog.Repository      = (*MemoryStore)(nil)
	_ pricing.OrderRepository = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		promotions: make(map[string]*promotion.Promotion),
		codes:      make(map[string]*promocode.PromoCode),
		discounts:  make(map[string]*shipping.ShippingDiscount),
		countries:  make(map[string]*shipping.Country),
		brands:     make(map[string]*catalog.Brand),
		categories: make(map[string]*catalog.Category),
		products:   make(map[string]*catalog.Product),
		orders:     make(map[string]*pricing.Order),
	}
}

// --- promotion.Repository ---

// Create validates and stores a promotion.
func (s *MemoryStore) Create(_ context.Context, p *promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := clonePromotion(p)
	s.promotions[cp.ID] = cp
	return nil
}

// GetByID returns the promotion, excluding soft-deleted rows.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*promotion.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.promotions[id]
	if !ok || p.Deleted {
		return nil, promotion.ErrNotFound
	}
	return clonePromotion(p), nil
}

// ListActive returns every promotion currently flagged active.
func (s *MemoryStore) ListActive(_ context.Context) ([]promotion.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []promotion.Promotion
	for _, p := range s.promotions {
		if p.Active && !p.Deleted {
			out = append(out, *clonePromotion(p))
		}
	}
	return out, nil
}

// ListAll returns every promotion, optionally including soft-deleted rows.
func (s *MemoryStore) ListAll(_ context.Context, includeDeleted bool) ([]promotion.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []promotion.Promotion
	for _, p := range s.promotions {
		if p.Deleted && !includeDeleted {
			continue
		}
		out = append(out, *clonePromotion(p))
	}
	return out, nil
}

// ActivateDue flips Active on for every promotion due for activation.
func (s *MemoryStore) ActivateDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.promotions {
		if p.DueForActivation(now) {
			p.Active = true
			n++
		}
	}
	return n, nil
}

// ExpireDue deactivates and soft-deletes every promotion past its end date.
func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.promotions {
		if p.DueForExpiration(now) {
			p.Active = false
			p.Deleted = true
			n++
		}
	}
	return n, nil
}

// SetActive is the explicit admin status toggle.
func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[id]
	if !ok || p.Deleted {
		return promotion.ErrNotFound
	}
	p.Active = active
	return nil
}

// SoftDelete marks the promotion deleted.
func (s *MemoryStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[id]
	if !ok || p.Deleted {
		return promotion.ErrNotFound
	}
	p.Active = false
	p.Deleted = true
	return nil
}

// DeleteByTarget hard-deletes promotions referencing the brand or category.
func (s *MemoryStore) DeleteByTarget(_ context.Context, brandID, categoryID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteByTargetLocked(brandID, categoryID), nil
}

func (s *MemoryStore) deleteByTargetLocked(brandID, categoryID string) int64 {
	var n int64
	for id, p := range s.promotions {
		if (brandID != "" && p.BrandID != nil && *p.BrandID == brandID) ||
			(categoryID != "" && p.CategoryID != nil && *p.CategoryID == categoryID) {
			delete(s.promotions, id)
			n++
		}
	}
	return n
}

// --- promocode.Repository ---

// PromoCodes returns a view of the store satisfying promocode.Repository.
// The promotion and promo code contracts both declare Create, so the code
// side lives behind this adapter.
func (s *MemoryStore) PromoCodes() promocode.Repository {
	return memoryCodeRepo{s: s}
}

type memoryCodeRepo struct {
	s *MemoryStore
}

// Create stores a new promo code, rejecting code string collisions.
func (r memoryCodeRepo) Create(_ context.Context, c *promocode.PromoCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.codes[c.Code]; exists {
		return promocode.ErrDuplicateCode
	}
	cp := *c
	r.s.codes[cp.Code] = &cp
	return nil
}

// FindByCode looks a promo code up by its code string.
func (r memoryCodeRepo) FindByCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	return r.s.FindByCode(ctx, code)
}

// InvalidateOlderThan marks aged codes invalid.
func (r memoryCodeRepo) InvalidateOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.s.InvalidateOlderThan(ctx, cutoff)
}

// FindByCode looks a promo code up by its code string.
func (s *MemoryStore) FindByCode(_ context.Context, code string) (*promocode.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, promocode.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// InvalidateOlderThan marks still-valid codes created before the cutoff as
// invalid.
func (s *MemoryStore) InvalidateOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.codes {
		if c.Valid && c.CreatedAt.Before(cutoff) {
			c.Valid = false
			n++
		}
	}
	return n, nil
}

// --- shipping.Repository ---

// CreateCountry stores a new shipping destination.
func (s *MemoryStore) CreateCountry(_ context.Context, c *shipping.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.countries[c.Name]; exists {
		return shipping.ErrCountryExists
	}
	cp := *c
	s.countries[cp.Name] = &cp
	return nil
}

// AttachToCountry persists the discount and attaches it to the country,
// enforcing at most one active discount per country.
func (s *MemoryStore) AttachToCountry(_ context.Context, countryName string, d *shipping.ShippingDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	country, ok := s.countries[countryName]
	if !ok {
		return shipping.ErrCountryNotFound
	}
	if country.DiscountID != nil {
		if existing, ok := s.discounts[*country.DiscountID]; ok && !existing.Deleted {
			return shipping.ErrDiscountExists
		}
	}

	cp := cloneDiscount(d)
	s.discounts[cp.ID] = cp
	country.DiscountID = &cp.ID
	return nil
}

// ActiveForCountry returns the country's active shipping discount.
func (s *MemoryStore) ActiveForCountry(_ context.Context, countryName string) (*shipping.ShippingDiscount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	country, ok := s.countries[countryName]
	if !ok {
		return nil, shipping.ErrCountryNotFound
	}
	if country.DiscountID == nil {
		return nil, shipping.ErrNotFound
	}
	d, ok := s.discounts[*country.DiscountID]
	if !ok || d.Deleted {
		return nil, shipping.ErrNotFound
	}
	return cloneDiscount(d), nil
}

// ExpireDiscountsDue soft-deletes every due discount and clears the owning
// countries' references in the same critical section.
func (s *MemoryStore) ExpireDiscountsDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, d := range s.discounts {
		if !d.DueForExpiration(now) {
			continue
		}
		d.Deleted = true
		n++
		for _, c := range s.countries {
			if c.DiscountID != nil && *c.DiscountID == d.ID {
				c.DiscountID = nil
			}
		}
	}
	return n, nil
}

// --- catalog.Repository ---

// CreateBrand stores a new brand with a unique name.
func (s *MemoryStore) CreateBrand(_ context.Context, b *catalog.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.brands {
		if existing.Name == b.Name {
			return catalog.ErrBrandExists
		}
	}
	cp := *b
	s.brands[cp.ID] = &cp
	return nil
}

// CreateCategory stores a new category with a unique name.
func (s *MemoryStore) CreateCategory(_ context.Context, c *catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Name == c.Name {
			return catalog.ErrCategoryExists
		}
	}
	cp := *c
	s.categories[cp.ID] = &cp
	return nil
}

// CreateProduct stores a new product. The brand and every category must
// already exist.
func (s *MemoryStore) CreateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.brands[p.BrandID]; !ok {
		return catalog.ErrBrandNotFound
	}
	for _, cid := range p.CategoryIDs {
		if _, ok := s.categories[cid]; !ok {
			return catalog.ErrCategoryNotFound
		}
	}
	cp := cloneProduct(p)
	s.products[cp.ID] = cp
	return nil
}

// BrandByName looks a brand up by name.
func (s *MemoryStore) BrandByName(_ context.Context, name string) (*catalog.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.brands {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, catalog.ErrBrandNotFound
}

// CategoryByName looks a category up by name.
func (s *MemoryStore) CategoryByName(_ context.Context, name string) (*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, catalog.ErrCategoryNotFound
}

// ProductsByIDs returns the products for the given ids, skipping unknown ids.
func (s *MemoryStore) ProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, *cloneProduct(p))
		}
	}
	return out, nil
}

// AdjustStock changes a product's stock by delta, clamping at zero.
func (s *MemoryStore) AdjustStock(_ context.Context, productID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	p.Stock += delta
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p.Stock, nil
}

// RemoveBrandCascade deletes the brand, its products, and the promotions
// targeting it, atomically.
func (s *MemoryStore) RemoveBrandCascade(_ context.Context, name string) (catalog.CascadeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var brand *catalog.Brand
	for _, b := range s.brands {
		if b.Name == name {
			brand = b
			break
		}
	}
	if brand == nil {
		return catalog.CascadeResult{}, catalog.ErrBrandNotFound
	}

	var res catalog.CascadeResult
	for id, p := range s.products {
		if p.BrandID == brand.ID {
			delete(s.products, id)
			res.Products++
		}
	}
	res.Promotions = s.deleteByTargetLocked(brand.ID, "")
	delete(s.brands, brand.ID)
	return res, nil
}

// RemoveCategoryCascade deletes the category, cleans the product junction,
// removes products left without any category, and deletes the promotions
// targeting the category, atomically.
func (s *MemoryStore) RemoveCategoryCascade(_ context.Context, name string) (catalog.CascadeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cat *catalog.Category
	for _, c := range s.categories {
		if c.Name == name {
			cat = c
			break
		}
	}
	if cat == nil {
		return catalog.CascadeResult{}, catalog.ErrCategoryNotFound
	}

	var res catalog.CascadeResult
	for id, p := range s.products {
		remaining := p.CategoryIDs[:0:0]
		removed := false
		for _, cid := range p.CategoryIDs {
			if cid == cat.ID {
				removed = true
				continue
			}
			remaining = append(remaining, cid)
		}
		if !removed {
			continue
		}
		if len(remaining) == 0 {
			delete(s.products, id)
			res.Products++
			continue
		}
		p.CategoryIDs = remaining
	}
	res.Promotions = s.deleteByTargetLocked("", cat.ID)
	delete(s.categories, cat.ID)
	return res, nil
}

// --- pricing.OrderRepository ---

// CreateWithRedemption inserts the order and decrements the promo code in
// one critical section. Re-inserting an existing order id is a no-op.
func (s *MemoryStore) CreateWithRedemption(_ context.Context, o *pricing.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return false, nil
	}

	if o.PromoCode != "" {
		c, ok := s.codes[o.PromoCode]
		if !ok {
			return false, promocode.ErrNotFound
		}
		if c.Remaining <= 0 {
			return false, promocode.ErrExhausted
		}
		if !c.Valid {
			return false, promocode.ErrExpired
		}
		c.Remaining--
		if c.Remaining == 0 {
			c.Valid = false
		}
	}

	cp := *o
	cp.Items = append([]pricing.PricedItem(nil), o.Items...)
	s.orders[cp.ID] = &cp
	return true, nil
}

// OrderByID returns a committed order, mainly for tests and diagnostics.
func (s *MemoryStore) OrderByID(id string) (*pricing.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// --- clone helpers; the store never hands out aliased pointers ---

func clonePromotion(p *promotion.Promotion) *promotion.Promotion {
	cp := *p
	if p.BrandID != nil {
		v := *p.BrandID
		cp.BrandID = &v
	}
	if p.CategoryID != nil {
		v := *p.CategoryID
		cp.CategoryID = &v
	}
	if p.EndsAt != nil {
		v := *p.EndsAt
		cp.EndsAt = &v
	}
	return &cp
}

func cloneDiscount(d *shipping.ShippingDiscount) *shipping.ShippingDiscount {
	cp := *d
	if d.EndsAt != nil {
		v := *d.EndsAt
		cp.EndsAt = &v
	}
	return &cp
}

func cloneProduct(p *catalog.Product) *catalog.Product {
	cp := *p
	cp.CategoryIDs = append([]string(nil), p.CategoryIDs...)
	return &cp
}
