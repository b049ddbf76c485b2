package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"dealwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scraping   ScrapingConfig   `mapstructure:"scraping"`
	Deals      DealsConfig      `mapstructure:"deals"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig covers the cross-cycle dedup cache. Optional.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	SeenTTL time.Duration `mapstructure:"seen_ttl"`
}

// ScrapingConfig governs catalog access.
type ScrapingConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BackoffFloor time.Duration `mapstructure:"backoff_floor"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	UserAgents   []string      `mapstructure:"user_agents"`
	Proxies      []string      `mapstructure:"proxies"`
}

// DealsConfig holds the analyzer thresholds and scoring weights.
type DealsConfig struct {
	MinDiscountPct    float64  `mapstructure:"min_discount_percentage"`
	MinPrice          float64  `mapstructure:"min_price"`
	MaxPrice          float64  `mapstructure:"max_price"`
	Categories        []string `mapstructure:"categories"`
	ClearanceKeywords []string `mapstructure:"clearance_keywords"`
	KnownBrands       []string `mapstructure:"known_brands"`
	DiscountWeight    float64  `mapstructure:"discount_weight"`
	RatingWeight      float64  `mapstructure:"rating_weight"`
	ReviewCountWeight float64  `mapstructure:"review_count_weight"`
	PriceRangeWeight  float64  `mapstructure:"price_range_weight"`
}

// SchedulingConfig governs cycle cadence and parallelism.
type SchedulingConfig struct {
	PeakStartHour   int           `mapstructure:"peak_start_hour"`
	PeakEndHour     int           `mapstructure:"peak_end_hour"`
	PeakInterval    time.Duration `mapstructure:"peak_interval"`
	OffPeakInterval time.Duration `mapstructure:"offpeak_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	WorklistMax     int           `mapstructure:"worklist_max"`
}

// TelegramConfig covers the broadcast transport.
type TelegramConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BotToken          string        `mapstructure:"bot_token"`
	AdminChatID       int64         `mapstructure:"admin_chat_id"`
	MaxPerDestination int           `mapstructure:"max_per_destination"`
	PacingDelay       time.Duration `mapstructure:"pacing_delay"`
	MaxThrottleWait   time.Duration `mapstructure:"max_throttle_wait"`
	BroadcastMinScore float64       `mapstructure:"broadcast_min_score"`
	IncludeImages     bool          `mapstructure:"include_images"`
}

// CleanupConfig sets data retention.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.seen_ttl", "24h")

	v.SetDefault("scraping.base_url", "https://www.amazon.sa")
	v.SetDefault("scraping.timeout", "30s")
	v.SetDefault("scraping.max_retries", 3)
	v.SetDefault("scraping.backoff_floor", "1s")
	v.SetDefault("scraping.min_delay", "2s")
	v.SetDefault("scraping.max_delay", "5s")

	v.SetDefault("deals.min_discount_percentage", 20.0)
	v.SetDefault("deals.min_price", 10.0)
	v.SetDefault("deals.max_price", 10000.0)
	v.SetDefault("deals.categories", []string{"electronics", "home", "fashion", "books", "sports"})
	v.SetDefault("deals.discount_weight", 0.4)
	v.SetDefault("deals.rating_weight", 0.2)
	v.SetDefault("deals.review_count_weight", 0.2)
	v.SetDefault("deals.price_range_weight", 0.2)

	v.SetDefault("scheduling.peak_start_hour", 18)
	v.SetDefault("scheduling.peak_end_hour", 23)
	v.SetDefault("scheduling.peak_interval", "15m")
	v.SetDefault("scheduling.offpeak_interval", "30m")
	v.SetDefault("scheduling.startup_delay", "0s")
	v.SetDefault("scheduling.max_workers", 5)
	v.SetDefault("scheduling.worklist_max", 20)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_per_destination", 5)
	v.SetDefault("telegram.pacing_delay", "1s")
	v.SetDefault("telegram.max_throttle_wait", "5m")
	v.SetDefault("telegram.broadcast_min_score", 6.0)
	v.SetDefault("telegram.include_images", true)

	v.SetDefault("cleanup.retention_days", 30)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scraping.BaseURL == "" {
		return fmt.Errorf("scraping.base_url is required")
	}
	if c.Scraping.MaxRetries <= 0 {
		return fmt.Errorf("scraping.max_retries must be greater than zero")
	}
	if c.Scraping.MinDelay > c.Scraping.MaxDelay {
		return fmt.Errorf("scraping.min_delay cannot exceed scraping.max_delay")
	}
	if c.Deals.MinDiscountPct < 0 || c.Deals.MinDiscountPct > 100 {
		return fmt.Errorf("deals.min_discount_percentage must be within [0,100]")
	}
	if c.Deals.MinPrice < 0 || c.Deals.MaxPrice <= c.Deals.MinPrice {
		return fmt.Errorf("deals price band is invalid")
	}
	if c.Scheduling.PeakStartHour < 0 || c.Scheduling.PeakStartHour > 23 ||
		c.Scheduling.PeakEndHour < 0 || c.Scheduling.PeakEndHour > 23 {
		return fmt.Errorf("scheduling peak hours must be within [0,23]")
	}
	if c.Scheduling.PeakInterval <= 0 || c.Scheduling.OffPeakInterval <= 0 {
		return fmt.Errorf("scheduling intervals must be greater than zero")
	}
	if c.Scheduling.MaxWorkers <= 0 {
		return fmt.Errorf("scheduling.max_workers must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram.enabled")
	}
	if c.Telegram.MaxPerDestination <= 0 {
		return fmt.Errorf("telegram.max_per_destination must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
