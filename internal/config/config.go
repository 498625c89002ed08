// Package config provides configuration management for the strategy service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/options_strategist/internal/strategy"
)

// Provider types
const (
	ProviderTradier = "tradier"
	ProviderMock    = "mock"
)

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultProviderTO     = 15 * time.Second
	defaultVolatility     = 0.20
	defaultRate           = 0.04
	defaultMinDTE         = 30
	defaultMaxDTE         = 60
	defaultAddr           = ":8080"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRecords     = 1000
	defaultRetries        = 3
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultRetryTimeout   = 2 * time.Minute
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Engine      EngineConfig      `yaml:"engine"`
	Retry       RetryConfig       `yaml:"retry"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines logging settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
	// LogFile enables a rotating log file in addition to stderr
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// ProviderConfig selects and configures the chain provider.
type ProviderConfig struct {
	Type        string        `yaml:"type"` // tradier | mock
	APIKey      string        `yaml:"api_key"`
	FreeAPIKey  string        `yaml:"free_api_key"`
	BaseURL     string        `yaml:"base_url"`
	FreeBaseURL string        `yaml:"free_base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	// MockSpots pins underlying prices for the mock provider
	MockSpots      map[string]float64   `yaml:"mock_spots"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker around the provider.
type CircuitBreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

// EngineConfig defines strategy engine parameters.
type EngineConfig struct {
	MissingGreeks string  `yaml:"missing_greeks"` // skip | estimate | reject
	MaxSpreadPct  float64 `yaml:"max_spread_pct"`
	// Volatility and Rate feed the Black-Scholes estimate used by the estimate policy
	Volatility float64 `yaml:"volatility"`
	Rate       float64 `yaml:"rate"`
	DTERange   []int   `yaml:"dte_range"`
}

// RetryConfig bounds retries of provider calls.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AuthToken      string        `yaml:"auth_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig defines the recommendation journal. An empty path keeps it in memory.
type StorageConfig struct {
	Path       string `yaml:"path"`
	MaxRecords int    `yaml:"max_records"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns a validated configuration that runs against the mock provider.
func Default() *Config {
	c := &Config{Provider: ProviderConfig{Type: ProviderMock}}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return c
}

// Validate fills defaults and checks that all values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}
	if c.Environment.LogMaxSizeMB < 0 || c.Environment.LogMaxBackups < 0 {
		return fmt.Errorf("environment.log_max_size_mb and environment.log_max_backups must be >= 0")
	}

	// Provider validation
	switch c.Provider.Type {
	case ProviderTradier:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for the tradier provider")
		}
	case ProviderMock:
		for sym, spot := range c.Provider.MockSpots {
			if spot <= 0 {
				return fmt.Errorf("provider.mock_spots.%s must be > 0", sym)
			}
		}
	default:
		return fmt.Errorf("provider.type must be 'tradier' or 'mock'")
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must be >= 0")
	}
	if cb := c.Provider.CircuitBreaker; cb.Enabled {
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("provider.circuit_breaker.failure_ratio must be in (0,1]")
		}
		if cb.Timeout <= 0 || cb.Interval < 0 {
			return fmt.Errorf("provider.circuit_breaker.timeout must be > 0 and interval >= 0")
		}
	}

	// Engine validation
	if _, err := strategy.ParseMissingGreeksPolicy(c.Engine.MissingGreeks); err != nil {
		return fmt.Errorf("engine.missing_greeks: %w", err)
	}
	if c.Engine.MaxSpreadPct <= 0 || c.Engine.MaxSpreadPct > 1 {
		return fmt.Errorf("engine.max_spread_pct must be in (0,1]")
	}
	if c.Engine.Volatility <= 0 || c.Engine.Volatility > 5 {
		return fmt.Errorf("engine.volatility must be in (0,5]")
	}
	if c.Engine.Rate < 0 || c.Engine.Rate > 1 {
		return fmt.Errorf("engine.rate must be in [0,1]")
	}
	// DTE range must be [min,max] with positive ints and min <= max
	if len(c.Engine.DTERange) != 2 ||
		c.Engine.DTERange[0] <= 0 ||
		c.Engine.DTERange[1] <= 0 ||
		c.Engine.DTERange[0] > c.Engine.DTERange[1] {
		return fmt.Errorf("engine.dte_range must be [min,max] with positive values and min <= max")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry.max_backoff (%v) must be >= retry.initial_backoff (%v)",
			c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}

	// Storage validation
	if c.Storage.MaxRecords < 0 {
		return fmt.Errorf("storage.max_records must be >= 0")
	}

	return nil
}

// normalize sets default values for unset fields
func (c *Config) normalize() {
	c.Environment.LogLevel = strings.ToLower(strings.TrimSpace(c.Environment.LogLevel))
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = defaultLogLevel
	}
	c.Environment.LogFormat = strings.ToLower(strings.TrimSpace(c.Environment.LogFormat))
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = defaultLogFormat
	}

	c.Provider.Type = strings.ToLower(strings.TrimSpace(c.Provider.Type))
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = defaultProviderTO
	}

	if c.Engine.MaxSpreadPct == 0 {
		c.Engine.MaxSpreadPct = strategy.DefaultMaxSpreadPct
	}
	if c.Engine.Volatility == 0 {
		c.Engine.Volatility = defaultVolatility
	}
	if c.Engine.Rate == 0 {
		c.Engine.Rate = defaultRate
	}
	if len(c.Engine.DTERange) == 0 {
		c.Engine.DTERange = []int{defaultMinDTE, defaultMaxDTE}
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = defaultRetries
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = defaultInitialBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = defaultMaxBackoff
	}
	if c.Retry.Timeout == 0 {
		c.Retry.Timeout = defaultRetryTimeout
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}

	if c.Storage.MaxRecords == 0 {
		c.Storage.MaxRecords = defaultMaxRecords
	}
}

// MissingGreeksPolicy returns the parsed engine policy.
func (c *Config) MissingGreeksPolicy() strategy.MissingGreeksPolicy {
	p, err := strategy.ParseMissingGreeksPolicy(c.Engine.MissingGreeks)
	if err != nil {
		return strategy.PolicySkip
	}
	return p
}

// DTEWindow returns the configured [min,max] days-to-expiration window.
func (c *Config) DTEWindow() (minDTE, maxDTE int) {
	if len(c.Engine.DTERange) != 2 {
		return defaultMinDTE, defaultMaxDTE
	}
	return c.Engine.DTERange[0], c.Engine.DTERange[1]
}
