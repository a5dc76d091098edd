package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all relay daemon configuration.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Relay    RelayConfig
	Logging  LogConfig
	AdminAPI AdminAPIConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// UpstreamConfig holds backend API configuration.
type UpstreamConfig struct {
	BaseURL string        `envconfig:"UPSTREAM_URL" default:"http://localhost:8080"`
	Timeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
}

// RelayConfig holds queue, breaker, limiter, and cache tuning.
type RelayConfig struct {
	// MinInterval is the minimum spacing between dispatch starts.
	MinInterval time.Duration `envconfig:"RELAY_MIN_INTERVAL" default:"200ms"`
	// TripThreshold is the consecutive-failure count that opens the circuit.
	TripThreshold uint32 `envconfig:"RELAY_TRIP_THRESHOLD" default:"5"`
	// Cooldown is the base open-state duration before a half-open probe.
	Cooldown time.Duration `envconfig:"RELAY_COOLDOWN" default:"30s"`
	// MaxCooldown caps cooldown growth across repeated trips.
	MaxCooldown time.Duration `envconfig:"RELAY_MAX_COOLDOWN" default:"5m"`
	// FailureWindow is the closed-state sliding window for failure counts.
	FailureWindow time.Duration `envconfig:"RELAY_FAILURE_WINDOW" default:"60s"`
	// CacheTTL is the default freshness window for cached responses.
	CacheTTL time.Duration `envconfig:"RELAY_CACHE_TTL" default:"30s"`
	// CacheSweep is the janitor interval; zero disables the sweep.
	CacheSweep time.Duration `envconfig:"RELAY_CACHE_SWEEP" default:"1m"`
	// MaxRetries bounds retries per request.
	MaxRetries int `envconfig:"RELAY_MAX_RETRIES" default:"3"`
	// RetryBaseWait is the first transient-retry delay.
	RetryBaseWait time.Duration `envconfig:"RELAY_RETRY_BASE_WAIT" default:"1s"`
	// RetryMaxWait caps exponential retry growth.
	RetryMaxWait time.Duration `envconfig:"RELAY_RETRY_MAX_WAIT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// AdminAPIConfig guards the daemon's own HTTP surface.
type AdminAPIConfig struct {
	RequestsPerSecond int  `envconfig:"ADMIN_RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"ADMIN_RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"ADMIN_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "0.0.0.0",
		},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			MinInterval:   200 * time.Millisecond,
			TripThreshold: 5,
			Cooldown:      30 * time.Second,
			MaxCooldown:   5 * time.Minute,
			FailureWindow: 60 * time.Second,
			CacheTTL:      30 * time.Second,
			CacheSweep:    time.Minute,
			MaxRetries:    3,
			RetryBaseWait: time.Second,
			RetryMaxWait:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		AdminAPI: AdminAPIConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
