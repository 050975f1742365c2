package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quant-dashboard/internal/indicator"
)

// Config holds all application configuration. Values come from defaults, then
// an optional YAML file (CONFIG_FILE), then environment variables.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// Storage
	StoreDriver string `yaml:"store_driver"` // sqlite | postgres
	SQLitePath  string `yaml:"sqlite_path"`
	DBDSN       string `yaml:"db_dsn"`

	// Cache; RedisAddr "none" disables it.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	// Ingestion
	Watchlist    string `yaml:"watchlist"` // comma-separated symbols
	HistoryRange string `yaml:"history_range"`
	RefreshCron  string `yaml:"refresh_cron"`
	MarketMIC    string `yaml:"market_mic"`
	YahooProxy   string `yaml:"yahoo_proxy"`

	// Alerts
	WebhookURL     string `yaml:"webhook_url"`
	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	// Dashboard defaults for requests that omit a parameter.
	Indicators indicator.Params `yaml:"indicators"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		StoreDriver:  "sqlite",
		SQLitePath:   "data/market.db",
		RedisAddr:    "localhost:6379",
		CacheTTL:     10 * time.Minute,
		Watchlist:    "AAPL,MSFT,NVDA,GOOGL,AMZN",
		HistoryRange: "max",
		RefreshCron:  "0 30 22 * * 1-5",
		MarketMIC:    "xnys",
		Indicators:   indicator.DefaultParams(),
	}
}

// Load builds the configuration. A missing CONFIG_FILE is not an error.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.DBDSN = getEnv("DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.Watchlist = getEnv("WATCHLIST", cfg.Watchlist)
	cfg.HistoryRange = getEnv("HISTORY_RANGE", cfg.HistoryRange)
	cfg.RefreshCron = getEnv("REFRESH_CRON", cfg.RefreshCron)
	cfg.MarketMIC = getEnv("MARKET_MIC", cfg.MarketMIC)
	cfg.YahooProxy = getEnv("YAHOO_PROXY", cfg.YahooProxy)
	cfg.WebhookURL = getEnv("WEBHOOK_URL", cfg.WebhookURL)
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)

	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("db_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("telegram_bot_token and telegram_chat_id must be set together")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	return nil
}

// CacheEnabled reports whether a Redis cache should be connected.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && !strings.EqualFold(c.RedisAddr, "none")
}

// Symbols parses Watchlist into upper-cased, de-duplicated tickers.
func (c *Config) Symbols() []string {
	parts := strings.Split(c.Watchlist, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, " /?#") {
			log.Printf("[config] skipping invalid watchlist symbol: %q", p)
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
