package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "LISTING_CONVERTER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	marketplaceToken  = "MARKETPLACE_TOKEN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
)

// Stream backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Stream        StreamConfig       `yaml:"stream"`
	Redis         RedisConfig        `yaml:"redis"`
	Database      DatabaseConfig     `yaml:"database"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Pricing       PricingConfig      `yaml:"pricing"`
	Policy        PolicyConfig       `yaml:"policy"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Marketplace   MarketplaceConfig  `yaml:"marketplace"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig describes the API listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	MaxBatch          int           `yaml:"maxBatch"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// StreamConfig tunes progress streaming and job housekeeping.
type StreamConfig struct {
	Backend           string        `yaml:"backend"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	DrainTimeout      time.Duration `yaml:"drainTimeout"`
	Retention         time.Duration `yaml:"retention"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	RetryHint         time.Duration `yaml:"retryHint"`
}

// RedisConfig describes the shared job registry.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	JobTTL   time.Duration `yaml:"jobTtl"`
}

// DatabaseConfig describes Postgres connection details. Empty DSN disables
// conversion history.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// PipelineConfig sets conversion defaults.
type PipelineConfig struct {
	TargetMargin float64 `yaml:"targetMargin"`
}

// PricingConfig overrides the target storefront fee schedule.
type PricingConfig struct {
	DefaultFeeRate float64            `yaml:"defaultFeeRate"`
	CategoryRates  map[string]float64 `yaml:"categoryRates"`
	PaymentRate    float64            `yaml:"paymentRate"`
	PaymentFixed   float64            `yaml:"paymentFixed"`
	Shipping       float64            `yaml:"shipping"`
}

// PolicyConfig lists protected brands and restricted wording.
type PolicyConfig struct {
	ProtectedBrands    []string `yaml:"protectedBrands"`
	BrandsFile         string   `yaml:"brandsFile"`
	RestrictedKeywords []string `yaml:"restrictedKeywords"`
	FuzzyThreshold     float64  `yaml:"fuzzyThreshold"`
}

// ScraperConfig tunes outgoing page fetches.
type ScraperConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
}

// MarketplaceConfig describes the listing API. Empty token disables publishing.
type MarketplaceConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	SiteURL  string        `yaml:"siteUrl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
		c.Stream.Backend = BackendRedis
	}

	if v := os.Getenv(marketplaceToken); v != "" {
		c.Marketplace.Token = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) normalize() {
	backend := strings.ToLower(strings.TrimSpace(c.Stream.Backend))
	if backend != BackendRedis {
		if backend != BackendMemory {
			log.Printf("config: unknown stream backend %q, reverting to %s", c.Stream.Backend, BackendMemory)
		}
		backend = BackendMemory
	}
	c.Stream.Backend = backend

	if c.Pipeline.TargetMargin <= 0 || c.Pipeline.TargetMargin >= 1 {
		log.Printf("config: target margin %v out of range, reverting to %v", c.Pipeline.TargetMargin, defaultConfig().Pipeline.TargetMargin)
		c.Pipeline.TargetMargin = defaultConfig().Pipeline.TargetMargin
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if override.HTTP.MaxBatch > 0 {
		base.HTTP.MaxBatch = override.HTTP.MaxBatch
	}
	if override.HTTP.ReadHeaderTimeout > 0 {
		base.HTTP.ReadHeaderTimeout = override.HTTP.ReadHeaderTimeout
	}
	if override.HTTP.ShutdownTimeout > 0 {
		base.HTTP.ShutdownTimeout = override.HTTP.ShutdownTimeout
	}

	if override.Stream.Backend != "" {
		base.Stream.Backend = override.Stream.Backend
	}
	if override.Stream.HeartbeatInterval > 0 {
		base.Stream.HeartbeatInterval = override.Stream.HeartbeatInterval
	}
	if override.Stream.DrainTimeout > 0 {
		base.Stream.DrainTimeout = override.Stream.DrainTimeout
	}
	if override.Stream.Retention > 0 {
		base.Stream.Retention = override.Stream.Retention
	}
	if override.Stream.SweepInterval > 0 {
		base.Stream.SweepInterval = override.Stream.SweepInterval
	}
	if override.Stream.RetryHint > 0 {
		base.Stream.RetryHint = override.Stream.RetryHint
	}

	if override.Redis.Addr != "" {
		base.Redis.Addr = override.Redis.Addr
	}
	if override.Redis.Password != "" {
		base.Redis.Password = override.Redis.Password
	}
	if override.Redis.DB > 0 {
		base.Redis.DB = override.Redis.DB
	}
	if override.Redis.JobTTL > 0 {
		base.Redis.JobTTL = override.Redis.JobTTL
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Pipeline.TargetMargin != 0 {
		base.Pipeline.TargetMargin = override.Pipeline.TargetMargin
	}

	if override.Pricing.DefaultFeeRate > 0 {
		base.Pricing.DefaultFeeRate = override.Pricing.DefaultFeeRate
	}
	if len(override.Pricing.CategoryRates) > 0 {
		base.Pricing.CategoryRates = override.Pricing.CategoryRates
	}
	if override.Pricing.PaymentRate > 0 {
		base.Pricing.PaymentRate = override.Pricing.PaymentRate
	}
	if override.Pricing.PaymentFixed > 0 {
		base.Pricing.PaymentFixed = override.Pricing.PaymentFixed
	}
	if override.Pricing.Shipping > 0 {
		base.Pricing.Shipping = override.Pricing.Shipping
	}

	if len(override.Policy.ProtectedBrands) > 0 {
		base.Policy.ProtectedBrands = override.Policy.ProtectedBrands
	}
	if override.Policy.BrandsFile != "" {
		base.Policy.BrandsFile = override.Policy.BrandsFile
	}
	if len(override.Policy.RestrictedKeywords) > 0 {
		base.Policy.RestrictedKeywords = override.Policy.RestrictedKeywords
	}
	if override.Policy.FuzzyThreshold > 0 {
		base.Policy.FuzzyThreshold = override.Policy.FuzzyThreshold
	}

	if override.Scraper.UserAgent != "" {
		base.Scraper.UserAgent = override.Scraper.UserAgent
	}
	if override.Scraper.RequestsPerSecond > 0 {
		base.Scraper.RequestsPerSecond = override.Scraper.RequestsPerSecond
	}
	if override.Scraper.Timeout > 0 {
		base.Scraper.Timeout = override.Scraper.Timeout
	}

	if override.Marketplace.Endpoint != "" {
		base.Marketplace.Endpoint = override.Marketplace.Endpoint
	}
	if override.Marketplace.Token != "" {
		base.Marketplace.Token = override.Marketplace.Token
	}
	if override.Marketplace.SiteURL != "" {
		base.Marketplace.SiteURL = override.Marketplace.SiteURL
	}
	if override.Marketplace.Timeout > 0 {
		base.Marketplace.Timeout = override.Marketplace.Timeout
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			MaxBatch:          50,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Stream: StreamConfig{
			Backend:           BackendMemory,
			HeartbeatInterval: 15 * time.Second,
			DrainTimeout:      5 * time.Second,
			Retention:         10 * time.Minute,
			SweepInterval:     time.Minute,
		},
		Redis:    RedisConfig{Addr: "localhost:6379", JobTTL: time.Hour},
		Database: DatabaseConfig{DSN: ""},
		Pipeline: PipelineConfig{TargetMargin: 0.20},
		Policy:   PolicyConfig{FuzzyThreshold: 0.85},
		Scraper: ScraperConfig{
			RequestsPerSecond: 0.5,
			Timeout:           30 * time.Second,
		},
		Marketplace: MarketplaceConfig{
			Endpoint: "https://api.ebay.com/sell/listing/v1",
			SiteURL:  "https://www.ebay.com",
			Timeout:  20 * time.Second,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
	}
}
