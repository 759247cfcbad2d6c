package promotion

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

// Sweeper is the promotion lifecycle manager. Each sweep runs an activation
// pass followed by an expiration pass, so a promotion whose window contains
// the current instant is active by the end of the sweep. Both passes are
// idempotent: re-running a sweep with no elapsed time changes nothing.
type Sweeper struct {
	repo     Repository
	clock    clock.Clock
	notifier notify.Notifier

	activated metric.Int64Counter
	expired   metric.Int64Counter
}

// NewSweeper creates a promotion Sweeper. A nil meter disables metrics.
func NewSweeper(repo Repository, clk clock.Clock, notifier notify.Notifier, meter metric.Meter) (*Sweeper, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("promotion")
	}
	activated, err := meter.Int64Counter("promo_engine.promotions.activated",
		metric.WithDescription("Promotions switched on by lifecycle sweeps"))
	if err != nil {
		return nil, errors.Wrap(err, "create activated counter")
	}
	expired, err := meter.Int64Counter("promo_engine.promotions.expired",
		metric.WithDescription("Promotions expired and soft-deleted by lifecycle sweeps"))
	if err != nil {
		return nil, errors.Wrap(err, "create expired counter")
	}
	return &Sweeper{
		repo:      repo,
		clock:     clk,
		notifier:  notifier,
		activated: activated,
		expired:   expired,
	}, nil
}

// ActivateDueSweep switches on every promotion whose start date has passed
// and whose end date (if any) has not. Returns the number of promotions
// activated.
func (s *Sweeper) ActivateDueSweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ActivateDue(ctx, s.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "activate due promotions")
	}
	s.activated.Add(ctx, n)
	if n > 0 {
		zctx.From(ctx).Info("promotions activated", zap.Int64("count", n))
	}
	return n, nil
}

// ExpireDueSweep deactivates and soft-deletes every promotion whose end
// date has passed. Returns the number of promotions expired.
func (s *Sweeper) ExpireDueSweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "expire due promotions")
	}
	s.expired.Add(ctx, n)
	if n > 0 {
		zctx.From(ctx).Info("promotions expired", zap.Int64("count", n))
	}
	return n, nil
}

// Sweep runs one full pass: activation before expiration.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if _, err := s.ActivateDueSweep(ctx); err != nil {
		return err
	}
	if _, err := s.ExpireDueSweep(ctx); err != nil {
		return err
	}
	return nil
}

// Run executes Sweep every interval until ctx is cancelled. A failed sweep
// is logged, reported to the admin sink, and retried on the next tick; it
// never stops the loop.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)
	lg.Info("promotion lifecycle sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("promotion lifecycle sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				lg.Warn("promotion sweep failed", zap.Error(err))
				s.notifier.NotifyAdmin(ctx, notify.SeverityWarning, "promotion sweep failed: "+err.Error())
			}
		}
	}
}
