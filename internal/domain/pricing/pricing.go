// Package pricing computes the final chargeable price of an order by
// stacking active promotions, an optional promo code, and the destination
// country's shipping discount.
//
// Discount precedence: each line item gets at most one promotion (highest
// percentage wins; ties go to the most recently created promotion, then the
// lexicographically smallest id). The promo code percentage applies on top
// of the post-promotion subtotal, and the shipping discount applies to the
// base shipping cost when that subtotal meets the discount's minimum order
// price. All monetary math uses decimal arithmetic and is rounded to two
// places only at the final amounts.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/domain/catalog"
	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/domain/shipping"
	"github.com/xenking/promo-engine/pkg/clock"
)

var hundred = decimal.NewFromInt(100)

// ErrEmptyItems is returned when a cart has no line items.
var ErrEmptyItems = errors.New("items required")

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineItem is one cart entry to be priced.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	Package     string          `json:"package,omitempty"`
	Flavour     string          `json:"flavour,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	BrandID     string          `json:"brand_id,omitempty"`
	CategoryIDs []string        `json:"category_ids,omitempty"`
}

// PricedItem is a line item together with the promotion applied to it.
type PricedItem struct {
	LineItem
	PromotionID string          `json:"promotion_id,omitempty"`
	Percentage  int             `json:"percentage"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Quote is the computed pricing breakdown for a cart. It is ephemeral: only
// CommitOrder persists anything.
type Quote struct {
	ID           string
	Items        []PricedItem
	Subtotal     decimal.Decimal
	ItemDiscount decimal.Decimal
	CodeDiscount decimal.Decimal
	PromoCode    string
	ShippingCost decimal.Decimal
	Country      string
	Total        decimal.Decimal
}

// Order is the persisted record of a committed quote.
type Order struct {
	ID           string
	Items        []PricedItem
	Subtotal     decimal.Decimal
	ItemDiscount decimal.Decimal
	CodeDiscount decimal.Decimal
	PromoCode    string
	ShippingCost decimal.Decimal
	Country      string
	Total        decimal.Decimal
	CreatedAt    time.Time
}

// OrderRepository persists committed orders atomically with promo code
// redemption.
type OrderRepository interface {
	// CreateWithRedemption inserts the order and, when o.PromoCode is not
	// empty, decrements that code's remaining count in the same
	// transaction, flipping its Valid flag off when the count reaches zero.
	// Inserting an already persisted order id is a no-op that performs no
	// second decrement; the returned bool reports whether the order was
	// inserted. The decrement is guarded by remaining > 0:
	// promocode.ErrExhausted is returned when the code has no uses left and
	// promocode.ErrConflict when a concurrent commit won the race.
	CreateWithRedemption(ctx context.Context, o *Order) (bool, error)
}

// Config holds pricing engine tunables.
type Config struct {
	// BaseShippingCost is charged before any shipping discount.
	BaseShippingCost decimal.Decimal
	// LowStockThreshold triggers an admin notification when a product's
	// stock falls to or below it after an order commit.
	LowStockThreshold int
}

// Engine computes cart totals from the currently active discounts. It only
// reads lifecycle state; the background sweepers own all flag transitions,
// so a quote may lag a sweep by at most one interval.
type Engine struct {
	promotions promotion.Repository
	codes      *promocode.Service
	shipping   shipping.Repository
	orders     OrderRepository
	catalog    catalog.Repository
	notifier   notify.Notifier
	clock      clock.Clock
	cfg        Config
}

// NewEngine creates a pricing Engine with the required domain dependencies.
func NewEngine(
	promotions promotion.Repository,
	codes *promocode.Service,
	ship shipping.Repository,
	orders OrderRepository,
	cat catalog.Repository,
	notifier notify.Notifier,
	clk clock.Clock,
	cfg Config,
) *Engine {
	return &Engine{
		promotions: promotions,
		codes:      codes,
		shipping:   ship,
		orders:     orders,
		catalog:    cat,
		notifier:   notifier,
		clock:      clk,
		cfg:        cfg,
	}
}

// ComputeTotal prices the cart against the currently active discounts. It
// never mutates lifecycle state and never decrements a promo code, so it is
// safe for quote/preview calls. An invalid, expired, or exhausted promo
// code is reported as a typed error; a missing country or shipping discount
// degrades to full shipping cost.
func (e *Engine) ComputeTotal(ctx context.Context, items []LineItem, codeText, country string) (*Quote, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	active, err := e.promotions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	// Item-level pass: subtotal plus the single best promotion per item.
	subtotal := decimal.Zero
	discounted := decimal.Zero
	priced := make([]PricedItem, len(items))
	for i, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)

		lineAfter := line
		pi := PricedItem{LineItem: item}
		if best := bestPromotion(active, item); best != nil {
			pi.PromotionID = best.ID
			pi.Percentage = best.Percentage
			lineAfter = line.Mul(hundred.Sub(decimal.NewFromInt(int64(best.Percentage)))).Div(hundred)
		}
		discounted = discounted.Add(lineAfter)
		pi.LineTotal = lineAfter
		priced[i] = pi
	}

	// Promo code applies to the post-promotion subtotal.
	codeDiscount := decimal.Zero
	if codeText != "" {
		code, err := e.codes.Validate(ctx, codeText)
		if err != nil {
			return nil, err
		}
		codeDiscount = discounted.Mul(decimal.NewFromInt(int64(code.Percentage))).Div(hundred)
	}
	afterCode := discounted.Sub(codeDiscount)

	shippingCost := e.shippingCost(ctx, country, afterCode)

	// Final rounding happens here and nowhere earlier.
	for i := range priced {
		priced[i].LineTotal = priced[i].LineTotal.Round(2)
	}
	q := &Quote{
		ID:           uuid.New().String(),
		Items:        priced,
		Subtotal:     subtotal.Round(2),
		ItemDiscount: subtotal.Sub(discounted).Round(2),
		CodeDiscount: codeDiscount.Round(2),
		PromoCode:    codeText,
		ShippingCost: shippingCost.Round(2),
		Country:      country,
		Total:        afterCode.Add(shippingCost).Round(2),
	}
	return q, nil
}

// shippingCost resolves the shipping charge for the destination. Missing
// country or discount configuration degrades to the full base cost.
func (e *Engine) shippingCost(ctx context.Context, country string, subtotal decimal.Decimal) decimal.Decimal {
	base := e.cfg.BaseShippingCost
	if country == "" {
		return base
	}

	d, err := e.shipping.ActiveForCountry(ctx, country)
	if err != nil {
		if !errors.Is(err, shipping.ErrNotFound) && !errors.Is(err, shipping.ErrCountryNotFound) {
			zctx.From(ctx).Warn("shipping discount lookup failed",
				zap.String("country", country), zap.Error(err))
		}
		return base
	}
	if !d.Qualifies(subtotal) {
		return base
	}
	return base.Mul(hundred.Sub(decimal.NewFromInt(int64(d.Percentage)))).Div(hundred)
}

// RedeemPromoCode validates a promo code without committing anything. The
// actual decrement happens inside CommitOrder's transaction.
func (e *Engine) RedeemPromoCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	return e.codes.Validate(ctx, code)
}

// CommitOrder persists the quote as an order. The promo code decrement and
// the order insert share one transaction, and committing the same quote
// twice is a no-op, so a code is never redeemed twice for the same order.
// Stock is adjusted after a successful insert, with low-stock notifications
// fired for products at or below the configured threshold.
func (e *Engine) CommitOrder(ctx context.Context, q *Quote) (*Order, error) {
	o := &Order{
		ID:           q.ID,
		Items:        q.Items,
		Subtotal:     q.Subtotal,
		ItemDiscount: q.ItemDiscount,
		CodeDiscount: q.CodeDiscount,
		PromoCode:    q.PromoCode,
		ShippingCost: q.ShippingCost,
		Country:      q.Country,
		Total:        q.Total,
		CreatedAt:    e.clock.Now(),
	}
	inserted, err := e.orders.CreateWithRedemption(ctx, o)
	if err != nil {
		if errors.Is(err, promocode.ErrExhausted) ||
			errors.Is(err, promocode.ErrConflict) ||
			errors.Is(err, promocode.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "commit order")
	}
	if inserted {
		e.reduceStock(ctx, q.Items)
	}
	return o, nil
}

// reduceStock decrements product stock for the committed items. Stock
// bookkeeping failures do not fail the order; they are logged and the
// admin is notified on low stock.
func (e *Engine) reduceStock(ctx context.Context, items []PricedItem) {
	lg := zctx.From(ctx)
	for _, item := range items {
		left, err := e.catalog.AdjustStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			lg.Warn("stock adjustment failed",
				zap.String("product", item.ProductID), zap.Error(err))
			continue
		}
		if left <= e.cfg.LowStockThreshold {
			e.notifier.NotifyAdmin(ctx, notify.SeverityWarning,
				fmt.Sprintf("product %s stock is low: %d left", item.ProductID, left))
		}
	}
}

// bestPromotion picks the single promotion applied to an item: highest
// percentage first, ties broken by most recent CreatedAt, then smallest id.
func bestPromotion(active []promotion.Promotion, item LineItem) *promotion.Promotion {
	var best *promotion.Promotion
	for i := range active {
		p := &active[i]
		if !matches(p, item) {
			continue
		}
		if best == nil || better(p, best) {
			best = p
		}
	}
	return best
}

func matches(p *promotion.Promotion, item LineItem) bool {
	if p.BrandID != nil && item.BrandID != "" && *p.BrandID == item.BrandID {
		return true
	}
	if p.CategoryID != nil {
		for _, c := range item.CategoryIDs {
			if c == *p.CategoryID {
				return true
			}
		}
	}
	return false
}

func better(a, b *promotion.Promotion) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
