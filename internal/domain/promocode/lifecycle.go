package promocode

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

// Sweeper invalidates promo codes that outlived the max-age policy.
// Exhaustion is handled synchronously at redemption time and is not this
// sweeper's concern.
type Sweeper struct {
	repo        Repository
	clock       clock.Clock
	maxAge      time.Duration
	notifier    notify.Notifier
	invalidated metric.Int64Counter
}

// NewSweeper creates a promo code Sweeper. A non-positive maxAge falls back
// to DefaultMaxAge; a nil meter disables metrics.
func NewSweeper(repo Repository, clk clock.Clock, maxAge time.Duration, notifier notify.Notifier, meter metric.Meter) (*Sweeper, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("promocode")
	}
	invalidated, err := meter.Int64Counter("promo_engine.promo_codes.invalidated",
		metric.WithDescription("Promo codes invalidated by age sweeps"))
	if err != nil {
		return nil, errors.Wrap(err, "create invalidated counter")
	}
	return &Sweeper{
		repo:        repo,
		clock:       clk,
		maxAge:      maxAge,
		notifier:    notifier,
		invalidated: invalidated,
	}, nil
}

// Sweep invalidates every still-valid code older than the max-age policy,
// returning the number of codes invalidated.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.maxAge)
	n, err := s.repo.InvalidateOlderThan(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "invalidate aged promo codes")
	}
	s.invalidated.Add(ctx, n)
	if n > 0 {
		zctx.From(ctx).Info("promo codes invalidated", zap.Int64("count", n))
	}
	return n, nil
}

// Run executes Sweep every interval until ctx is cancelled. Failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)
	lg.Info("promo code cleanup sweeper started",
		zap.Duration("interval", interval), zap.Duration("max_age", s.maxAge))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("promo code cleanup sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				lg.Warn("promo code sweep failed", zap.Error(err))
				s.notifier.NotifyAdmin(ctx, notify.SeverityWarning, "promo code sweep failed: "+err.Error())
			}
		}
	}
}
