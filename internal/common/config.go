// Package common provides shared utilities for stockboard
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for stockboard
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	Cache       CacheConfig     `toml:"cache"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration for the bar store.
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Yahoo YahooConfig `toml:"yahoo"`
}

// YahooConfig holds upstream market-data API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheConfig holds TTL and batch settings for the quote/fundamentals caches.
type CacheConfig struct {
	QuoteTTL        string `toml:"quote_ttl"`
	FundamentalsTTL string `toml:"fundamentals_ttl"`
	QuoteBatchSize  int    `toml:"quote_batch_size"`
}

// GetQuoteTTL parses and returns the quote TTL duration.
func (c *CacheConfig) GetQuoteTTL() time.Duration {
	d, err := time.ParseDuration(c.QuoteTTL)
	if err != nil {
		return QuoteTTL
	}
	return d
}

// GetFundamentalsTTL parses and returns the fundamentals TTL duration.
func (c *CacheConfig) GetFundamentalsTTL() time.Duration {
	d, err := time.ParseDuration(c.FundamentalsTTL)
	if err != nil {
		return FundamentalsTTL
	}
	return d
}

// SchedulerConfig holds the background refresh schedule.
type SchedulerConfig struct {
	Enabled      bool     `toml:"enabled"`
	QuoteCron    string   `toml:"quote_cron"`    // warm quote cache for watch symbols
	EventsCron   string   `toml:"events_cron"`   // refresh calendar events
	WatchSymbols []string `toml:"watch_symbols"` // symbols to keep warm
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Namespace: "stockboard",
			Database:  "market",
			Username:  "root",
			Password:  "root",
		},
		Clients: ClientsConfig{
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Cache: CacheConfig{
			QuoteTTL:        "90s",
			FundamentalsTTL: "6h",
			QuoteBatchSize:  20,
		},
		Scheduler: SchedulerConfig{
			Enabled:    false,
			QuoteCron:  "*/5 * * * *",
			EventsCron: "0 6 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STOCKBOARD_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("STOCKBOARD_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("STOCKBOARD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("STOCKBOARD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("STOCKBOARD_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if ns := os.Getenv("STOCKBOARD_STORAGE_NAMESPACE"); ns != "" {
		config.Storage.Namespace = ns
	}
	if db := os.Getenv("STOCKBOARD_STORAGE_DATABASE"); db != "" {
		config.Storage.Database = db
	}
	if user := os.Getenv("STOCKBOARD_STORAGE_USERNAME"); user != "" {
		config.Storage.Username = user
	}
	if pass := os.Getenv("STOCKBOARD_STORAGE_PASSWORD"); pass != "" {
		config.Storage.Password = pass
	}

	if base := os.Getenv("STOCKBOARD_YAHOO_BASE_URL"); base != "" {
		config.Clients.Yahoo.BaseURL = base
	}

	if symbols := os.Getenv("STOCKBOARD_WATCH_SYMBOLS"); symbols != "" {
		parts := strings.Split(symbols, ",")
		watch := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				watch = append(watch, strings.ToUpper(p))
			}
		}
		config.Scheduler.WatchSymbols = watch
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
