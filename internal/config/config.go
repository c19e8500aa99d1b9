package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"coincap-trade-sim/internal/market"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	CoinCap  CoinCap   `mapstructure:"coincap"`
	Feed     Feed      `mapstructure:"feed"`
	Logger   Logger    `mapstructure:"logger"`
	Database Database  `mapstructure:"database"`
	Redis    Redis     `mapstructure:"redis"`
	Accounts []Account `mapstructure:"accounts"`
}

// CoinCap holds the configuration for the quote provider.
type CoinCap struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// Feed holds the polling and consumer loop settings.
type Feed struct {
	Assets        []string      `mapstructure:"assets"`
	Interval      time.Duration `mapstructure:"interval"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
	ViewInterval  time.Duration `mapstructure:"view_interval"`
	HistorySize   int           `mapstructure:"history_size"`
	ChartWindow   int           `mapstructure:"chart_window"`
	CandleChunk   int           `mapstructure:"candle_chunk"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"` // gorm logger: silent, error, warn, info
}

// Redis holds the optional price mirror settings. An empty URL disables it.
type Redis struct {
	URL       string `mapstructure:"url"`
	Channel   string `mapstructure:"channel"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`
	Outputs []string `mapstructure:"outputs"`
}

// Account is seeded into the store at startup when it does not exist yet.
type Account struct {
	Username        string `mapstructure:"username"`
	StartingBalance string `mapstructure:"starting_balance"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("coincap.base_url", "https://rest.coincap.io/v3")
	v.SetDefault("coincap.api_key", "")
	v.SetDefault("coincap.timeout", 10*time.Second)
	v.SetDefault("coincap.rate_limit", 10) // requests per second
	v.SetDefault("coincap.rate_limit_burst", 5)
	v.SetDefault("coincap.max_retries", 1)

	v.SetDefault("feed.assets", market.DefaultAssets)
	v.SetDefault("feed.interval", 3*time.Second)
	v.SetDefault("feed.drain_interval", 200*time.Millisecond)
	v.SetDefault("feed.view_interval", 2*time.Second)
	v.SetDefault("feed.history_size", market.DefaultHistorySize)
	v.SetDefault("feed.chart_window", 60)
	v.SetDefault("feed.candle_chunk", 4)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "trade-sim.db")
	v.SetDefault("database.log_level", "error")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "prices")
	v.SetDefault("redis.key_prefix", "price:")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// LoadConfig reads configuration from a .env file, config.yml in path, and environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	err = config.Validate()
	return
}

// Validate rejects settings the feed and ledger cannot run with.
func (c *Config) Validate() error {
	if len(c.Feed.Assets) == 0 {
		return errors.New("feed.assets must list at least one asset")
	}
	if c.Feed.Interval <= 0 || c.Feed.DrainInterval <= 0 || c.Feed.ViewInterval <= 0 {
		return errors.New("feed intervals must be positive")
	}
	if c.Feed.HistorySize < 1 {
		return fmt.Errorf("feed.history_size must be at least 1, got %d", c.Feed.HistorySize)
	}
	if c.CoinCap.Timeout <= 0 {
		return errors.New("coincap.timeout must be positive")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	for _, a := range c.Accounts {
		if a.Username == "" {
			return errors.New("accounts entries need a username")
		}
	}
	return nil
}
