package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete daemon configuration, loadable from environment
// variables (PROMO_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8081" usage:"admin server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PROMO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Sweep       SweepConfig
	Pricing     PricingConfig
	Graceful    GracefulConfig
}

// SweepConfig controls the lifecycle managers' schedules and policies.
type SweepConfig struct {
	PromotionInterval time.Duration `default:"1m"    usage:"promotion activation/expiration sweep interval" flag:"promotion-sweep-interval"`
	PromoCodeInterval time.Duration `default:"1h"    usage:"promo code age sweep interval" flag:"promo-code-sweep-interval"`
	ShippingInterval  time.Duration `default:"5m"    usage:"shipping discount expiration sweep interval" flag:"shipping-sweep-interval"`
	PromoCodeMaxAge   time.Duration `default:"2160h" usage:"promo code max age before invalidation" flag:"promo-code-max-age"`
}

// PricingConfig controls the order pricing engine.
type PricingConfig struct {
	BaseShippingCost  string `default:"4.99" usage:"base shipping cost before discounts" flag:"base-shipping-cost"`
	LowStockThreshold int    `default:"5"    usage:"stock level triggering a low-stock notification" flag:"low-stock-threshold"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// BaseShippingCostDecimal parses the configured base shipping cost.
func (c PricingConfig) BaseShippingCostDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.BaseShippingCost)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse base shipping cost %q", c.BaseShippingCost)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("base shipping cost must not be negative")
	}
	return d, nil
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PROMO",
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PROMO_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Pricing.BaseShippingCostDecimal(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the PROMO_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8081" {
		c.Addr = "0.0.0.0:" + port
	}
}
