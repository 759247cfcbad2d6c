package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/domain/notify"
)

// Deleter coordinates cascading removal of brands and categories. Each
// removal is a single atomic unit: dependent products and promotions go
// with the parent entity, or nothing is deleted at all.
type Deleter struct {
	repo     Repository
	notifier notify.Notifier
}

// NewDeleter creates a cascade deletion coordinator.
func NewDeleter(repo Repository, notifier notify.Notifier) *Deleter {
	return &Deleter{repo: repo, notifier: notifier}
}

// RemoveBrand deletes the named brand together with its products and the
// promotions referencing it. Returns ErrBrandNotFound when the brand does
// not exist.
func (d *Deleter) RemoveBrand(ctx context.Context, name string) error {
	res, err := d.repo.RemoveBrandCascade(ctx, name)
	if err != nil {
		if errors.Is(err, ErrBrandNotFound) {
			return ErrBrandNotFound
		}
		return errors.Wrap(err, "remove brand")
	}

	zctx.From(ctx).Info("brand removed",
		zap.String("brand", name),
		zap.Int64("products", res.Products),
		zap.Int64("promotions", res.Promotions))
	d.notifier.NotifyAdmin(ctx, notify.SeverityInfo,
		fmt.Sprintf("brand %q removed with %d products and %d promotions", name, res.Products, res.Promotions))
	return nil
}

// RemoveCategory deletes the named category, its product associations,
// products left without any other category, and the promotions referencing
// it. Returns ErrCategoryNotFound when the category does not exist.
func (d *Deleter) RemoveCategory(ctx context.Context, name string) error {
	res, err := d.repo.RemoveCategoryCascade(ctx, name)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return ErrCategoryNotFound
		}
		return errors.Wrap(err, "remove category")
	}

	zctx.From(ctx).Info("category removed",
		zap.String("category", name),
		zap.Int64("products", res.Products),
		zap.Int64("promotions", res.Promotions))
	d.notifier.NotifyAdmin(ctx, notify.SeverityInfo,
		fmt.Sprintf("category %q removed with %d products and %d promotions", name, res.Products, res.Promotions))
	return nil
}
