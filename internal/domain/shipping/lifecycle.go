package shipping

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/pkg/clock"
)

// Sweeper expires shipping discounts whose end date has passed, detaching
// them from their countries in the same transaction.
type Sweeper struct {
	repo     Repository
	clock    clock.Clock
	notifier notify.Notifier
	expired  metric.Int64Counter
}

// NewSweeper creates a shipping discount Sweeper. A nil meter disables
// metrics.
func NewSweeper(repo Repository, clk clock.Clock, notifier notify.Notifier, meter metric.Meter) (*Sweeper, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("shipping")
	}
	expired, err := meter.Int64Counter("promo_engine.shipping_discounts.expired",
		metric.WithDescription("Shipping discounts expired and detached by lifecycle sweeps"))
	if err != nil {
		return nil, errors.Wrap(err, "create expired counter")
	}
	return &Sweeper{repo: repo, clock: clk, notifier: notifier, expired: expired}, nil
}

// Sweep soft-deletes every due discount and nulls the owning countries'
// references, returning the number of discounts expired.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDiscountsDue(ctx, s.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "expire due shipping discounts")
	}
	s.expired.Add(ctx, n)
	if n > 0 {
		zctx.From(ctx).Info("shipping discounts expired", zap.Int64("count", n))
	}
	return n, nil
}

// Run executes Sweep every interval until ctx is cancelled. Failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)
	lg.Info("shipping discount sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("shipping discount sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				lg.Warn("shipping discount sweep failed", zap.Error(err))
				s.notifier.NotifyAdmin(ctx, notify.SeverityWarning, "shipping discount sweep failed: "+err.Error())
			}
		}
	}
}
