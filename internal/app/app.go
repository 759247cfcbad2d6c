// Package app wires the promotion engine's dependencies and runs the sweep
// daemon: the three lifecycle managers plus the admin HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-engine/internal/domain/catalog"
	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/domain/shipping"
	"github.com/xenking/promo-engine/internal/repository"
	"github.com/xenking/promo-engine/pkg/clock"
	"github.com/xenking/promo-engine/pkg/health"
	"github.com/xenking/promo-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the lifecycle sweepers and the admin
// HTTP server, and handles graceful shutdown. It is the single wiring point
// for the daemon.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories and shared collaborators.
	promotionRepo := repository.NewPromotionRepository(pool)
	promoCodeRepo := repository.NewPromoCodeRepository(pool)
	shippingRepo := repository.NewShippingRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	notifier := notify.NewLogNotifier(lg)
	clk := clock.System{}
	meter := m.MeterProvider().Meter("promo-engine")

	// Pricing engine and back-office services.
	baseShipping, err := cfg.Pricing.BaseShippingCostDecimal()
	if err != nil {
		return err
	}
	codeService := promocode.NewService(promoCodeRepo, clk, cfg.Sweep.PromoCodeMaxAge)
	engine := pricing.NewEngine(promotionRepo, codeService, shippingRepo, orderRepo, catalogRepo, notifier, clk, pricing.Config{
		BaseShippingCost:  baseShipping,
		LowStockThreshold: cfg.Pricing.LowStockThreshold,
	})
	deleter := catalog.NewDeleter(catalogRepo, notifier)

	// Lifecycle sweepers.
	promotionSweeper, err := promotion.NewSweeper(promotionRepo, clk, notifier, meter)
	if err != nil {
		return errors.Wrap(err, "create promotion sweeper")
	}
	codeSweeper, err := promocode.NewSweeper(promoCodeRepo, clk, cfg.Sweep.PromoCodeMaxAge, notifier, meter)
	if err != nil {
		return errors.Wrap(err, "create promo code sweeper")
	}
	shippingSweeper, err := shipping.NewSweeper(shippingRepo, clk, notifier, meter)
	if err != nil {
		return errors.Wrap(err, "create shipping sweeper")
	}

	// Admin mux: probes, manual sweep triggers, and back-office operations.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	admin := &adminHandler{
		engine:           engine,
		codes:            codeService,
		deleter:          deleter,
		promotionSweeper: promotionSweeper,
		codeSweeper:      codeSweeper,
		shippingSweeper:  shippingSweeper,
	}
	admin.register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		promotionSweeper.Run(ctx, cfg.Sweep.PromotionInterval)
		return nil
	})
	g.Go(func() error {
		codeSweeper.Run(ctx, cfg.Sweep.PromoCodeInterval)
		return nil
	})
	g.Go(func() error {
		shippingSweeper.Run(ctx, cfg.Sweep.ShippingInterval)
		return nil
	})
	g.Go(func() error {
		lg.Info("Admin server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "admin server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down admin server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Admin server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
