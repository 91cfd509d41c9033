package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Review   ReviewConfig   `yaml:"review" mapstructure:"review"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RenderConfig configures how listing and product pages are loaded.
type RenderConfig struct {
	Engine             string `yaml:"engine" mapstructure:"engine"`
	ListingTimeoutSecs int    `yaml:"listing_timeout_secs" mapstructure:"listing_timeout_secs"`
	ProductTimeoutSecs int    `yaml:"product_timeout_secs" mapstructure:"product_timeout_secs"`
	ListingSettleMs    int    `yaml:"listing_settle_ms" mapstructure:"listing_settle_ms"`
	ProductSettleMs    int    `yaml:"product_settle_ms" mapstructure:"product_settle_ms"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	Locale             string `yaml:"locale" mapstructure:"locale"`
	Timezone           string `yaml:"timezone" mapstructure:"timezone"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Retries            int    `yaml:"retries" mapstructure:"retries"`
	RetryBackoffMs     int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// ListingTimeout returns the listing page navigation timeout.
func (c RenderConfig) ListingTimeout() time.Duration {
	return time.Duration(c.ListingTimeoutSecs) * time.Second
}

// ProductTimeout returns the product page navigation timeout.
func (c RenderConfig) ProductTimeout() time.Duration {
	return time.Duration(c.ProductTimeoutSecs) * time.Second
}

// ScrapeConfig configures per-winery scraping.
type ScrapeConfig struct {
	Workers        int    `yaml:"workers" mapstructure:"workers"`
	ProductDelayMs int    `yaml:"product_delay_ms" mapstructure:"product_delay_ms"`
	RulesPath      string `yaml:"rules_path" mapstructure:"rules_path"`
}

// ReviewConfig configures the admin review workflow.
type ReviewConfig struct {
	DefaultStatus string `yaml:"default_status" mapstructure:"default_status"`
}

// ScheduleConfig configures the periodic scrape runner.
type ScheduleConfig struct {
	Spec        string `yaml:"spec" mapstructure:"spec"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// MetricsConfig configures Prometheus metric naming.
type MetricsConfig struct {
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WINERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "winery.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("render.engine", "http")
	v.SetDefault("render.listing_timeout_secs", 30)
	v.SetDefault("render.product_timeout_secs", 20)
	v.SetDefault("render.listing_settle_ms", 2000)
	v.SetDefault("render.product_settle_ms", 1000)
	v.SetDefault("render.user_agent", "Mozilla/5.0 (compatible; WineryCatalogBot/1.0)")
	v.SetDefault("render.locale", "en-AU")
	v.SetDefault("render.timezone", "Australia/Sydney")
	v.SetDefault("render.max_body_bytes", 2*1024*1024)
	v.SetDefault("render.retries", 0)
	v.SetDefault("render.retry_backoff_ms", 1000)
	v.SetDefault("scrape.workers", 3)
	v.SetDefault("scrape.product_delay_ms", 500)
	v.SetDefault("scrape.rules_path", "")
	v.SetDefault("review.default_status", "pending")
	v.SetDefault("schedule.spec", "0 0 3 * * *")
	v.SetDefault("schedule.metrics_addr", ":9102")
	v.SetDefault("metrics.prefix", "winery")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a scrape.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	switch c.Render.Engine {
	case "http", "chromedp":
	default:
		return eris.Errorf("config: unknown render engine %q", c.Render.Engine)
	}
	if c.Render.ListingTimeoutSecs <= 0 || c.Render.ProductTimeoutSecs <= 0 {
		return eris.New("config: render timeouts must be positive")
	}
	if c.Render.Retries < 0 {
		return eris.Errorf("config: render.retries must not be negative, got %d", c.Render.Retries)
	}
	switch c.Review.DefaultStatus {
	case "pending", "live", "archived":
	default:
		return eris.Errorf("config: review.default_status must be pending, live or archived, got %q", c.Review.DefaultStatus)
	}
	if c.Scrape.Workers < 1 {
		return eris.Errorf("config: scrape.workers must be at least 1, got %d", c.Scrape.Workers)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
