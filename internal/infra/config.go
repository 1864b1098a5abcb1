package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"market_pulse/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultConfigPath is where the serve command looks for its YAML file.
	DefaultConfigPath = "configs/config.yaml"
)

// ProviderEndpoint is the URL and credential of one external source.
type ProviderEndpoint struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// InstrumentConfig is one entry of the broadcast universe.
type InstrumentConfig struct {
	Symbol string  `yaml:"symbol"`
	Base   float64 `yaml:"base"`
	Spread float64 `yaml:"spread"`
}

// AssetConfig seeds one catalog row.
type AssetConfig struct {
	Symbol     string `yaml:"symbol"`
	Name       string `yaml:"name"`
	ProviderID string `yaml:"provider_id"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSOrigins        []string `yaml:"cors_origins"`
		ShutdownTimeoutSec int      `yaml:"shutdown_timeout_sec"`
	} `yaml:"server"`

	Providers struct {
		TimeoutSec   int              `yaml:"timeout_sec"`
		AlphaVantage ProviderEndpoint `yaml:"alpha_vantage"`
		CoinGecko    ProviderEndpoint `yaml:"coingecko"`
		ExchangeRate ProviderEndpoint `yaml:"exchange_rate"`
	} `yaml:"providers"`

	Query struct {
		DefaultDays  int `yaml:"default_days"`
		DefaultHours int `yaml:"default_hours"`
		MaxDays      int `yaml:"max_days"`
		MaxHours     int `yaml:"max_hours"`
	} `yaml:"query"`

	Stream struct {
		IntervalSec int `yaml:"interval_sec"`
		BackoffSec  int `yaml:"backoff_sec"`
		QueueSize   int `yaml:"queue_size"`
		Universe    struct {
			Stocks  []InstrumentConfig `yaml:"stocks"`
			Crypto  []InstrumentConfig `yaml:"crypto"`
			Indices []InstrumentConfig `yaml:"indices"`
		} `yaml:"universe"`
	} `yaml:"stream"`

	Cache struct {
		Backend  string `yaml:"backend"` // memory, redis or none
		TTLSec   int    `yaml:"ttl_sec"`
		MaxItems int64  `yaml:"max_items"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Catalog struct {
		DBPath string        `yaml:"db_path"`
		Stocks []AssetConfig `yaml:"stocks"`
		Crypto []AssetConfig `yaml:"crypto"`
		Forex  []AssetConfig `yaml:"forex"`
	} `yaml:"catalog"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "market-pulse"
	cfg.App.Version = "dev"

	cfg.Server.Addr = ":5000"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.ShutdownTimeoutSec = 5

	cfg.Providers.TimeoutSec = 10
	cfg.Providers.AlphaVantage.URL = "https://www.alphavantage.co/query"
	cfg.Providers.CoinGecko.URL = "https://api.coingecko.com/api/v3"
	cfg.Providers.ExchangeRate.URL = "https://api.exchangerate-api.com/v4/latest"

	cfg.Query.DefaultDays = 30
	cfg.Query.DefaultHours = 24
	cfg.Query.MaxDays = 1000
	cfg.Query.MaxHours = 2160

	cfg.Stream.IntervalSec = 5
	cfg.Stream.BackoffSec = 30
	cfg.Stream.QueueSize = 64
	cfg.Stream.Universe.Stocks = []InstrumentConfig{
		{Symbol: "AAPL", Base: 175, Spread: 5},
		{Symbol: "GOOGL", Base: 140, Spread: 3},
		{Symbol: "MSFT", Base: 380, Spread: 8},
	}
	cfg.Stream.Universe.Crypto = []InstrumentConfig{
		{Symbol: "BTC", Base: 45000, Spread: 500},
		{Symbol: "ETH", Base: 2500, Spread: 50},
	}
	cfg.Stream.Universe.Indices = []InstrumentConfig{
		{Symbol: "SP500", Base: 4500, Spread: 20},
		{Symbol: "DOW", Base: 35000, Spread: 100},
		{Symbol: "NASDAQ", Base: 14000, Spread: 50},
	}

	cfg.Cache.Backend = "memory"
	cfg.Cache.TTLSec = 60
	cfg.Cache.MaxItems = 10000
	cfg.Cache.Redis.Addr = "localhost:6379"
	cfg.Cache.Redis.Prefix = "market_pulse:"

	cfg.Catalog.DBPath = "data/market_pulse.db"
	for _, s := range []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "META", "NVDA", "IBM", "NFLX"} {
		cfg.Catalog.Stocks = append(cfg.Catalog.Stocks, AssetConfig{Symbol: s})
	}
	cfg.Catalog.Crypto = []AssetConfig{
		{Symbol: "BTC", Name: "Bitcoin", ProviderID: "bitcoin"},
		{Symbol: "ETH", Name: "Ethereum", ProviderID: "ethereum"},
		{Symbol: "BNB", Name: "BNB", ProviderID: "binancecoin"},
		{Symbol: "SOL", Name: "Solana", ProviderID: "solana"},
		{Symbol: "ADA", Name: "Cardano", ProviderID: "cardano"},
		{Symbol: "DOT", Name: "Polkadot", ProviderID: "polkadot"},
		{Symbol: "DOGE", Name: "Dogecoin", ProviderID: "dogecoin"},
		{Symbol: "MATIC", Name: "Polygon", ProviderID: "matic-network"},
	}
	for _, p := range []string{"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF", "AUD/USD", "USD/CAD"} {
		cfg.Catalog.Forex = append(cfg.Catalog.Forex, AssetConfig{Symbol: p})
	}

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// 파일이 없으면 기본값을 사용합니다.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return configErr("server.addr", "must not be empty")
	}
	if c.Providers.TimeoutSec <= 0 {
		return configErr("providers.timeout_sec", "must be positive")
	}
	endpoints := map[string]string{
		"providers.alpha_vantage.url": c.Providers.AlphaVantage.URL,
		"providers.coingecko.url":     c.Providers.CoinGecko.URL,
		"providers.exchange_rate.url": c.Providers.ExchangeRate.URL,
	}
	for field, u := range endpoints {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return configErr(field, fmt.Sprintf("invalid URL: %q", u))
		}
	}

	if c.Query.DefaultDays <= 0 || c.Query.DefaultDays > c.Query.MaxDays {
		return configErr("query.default_days", "must be between 1 and max_days")
	}
	if c.Query.DefaultHours <= 0 || c.Query.DefaultHours > c.Query.MaxHours {
		return configErr("query.default_hours", "must be between 1 and max_hours")
	}

	if c.Stream.IntervalSec <= 0 {
		return configErr("stream.interval_sec", "must be positive")
	}
	if c.Stream.BackoffSec <= 0 {
		return configErr("stream.backoff_sec", "must be positive")
	}
	if c.Stream.QueueSize <= 0 {
		return configErr("stream.queue_size", "must be positive")
	}
	u := c.Stream.Universe
	if len(u.Stocks)+len(u.Crypto)+len(u.Indices) == 0 {
		return configErr("stream.universe", "at least one instrument is required")
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return configErr("cache.redis.addr", "required for redis backend")
		}
	default:
		return configErr("cache.backend", fmt.Sprintf("unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.TTLSec < 0 {
		return configErr("cache.ttl_sec", "must not be negative")
	}

	if c.Catalog.DBPath == "" {
		return configErr("catalog.db_path", "must not be empty")
	}
	return nil
}

func configErr(field, msg string) error {
	return &domain.ConfigError{Field: field, Err: errors.New(msg)}
}

// ProviderTimeout is the bound applied to every outbound request.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSec) * time.Second
}

// StreamInterval is the wait between two broadcast cycles.
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.Stream.IntervalSec) * time.Second
}

// StreamBackoff is the wait after a failed broadcast cycle.
func (c *Config) StreamBackoff() time.Duration {
	return time.Duration(c.Stream.BackoffSec) * time.Second
}

// CacheTTL is how long a live series stays cached. Zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// ShutdownTimeout bounds the HTTP server drain on exit.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("MARKET_ALPHAVANTAGE_KEY"); key != "" {
		cfg.Providers.AlphaVantage.APIKey = key
	}
	if key := os.Getenv("MARKET_COINGECKO_KEY"); key != "" {
		cfg.Providers.CoinGecko.APIKey = key
	}
	if key := os.Getenv("MARKET_EXCHANGERATE_KEY"); key != "" {
		cfg.Providers.ExchangeRate.APIKey = key
	}
	if pass := os.Getenv("MARKET_REDIS_PASSWORD"); pass != "" {
		cfg.Cache.Redis.Password = pass
	}
	if addr := os.Getenv("MARKET_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("MARKET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
