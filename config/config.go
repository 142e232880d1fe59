package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fwdefense/adapters/redis"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"FWD_ENV"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Push relay configuration
	Push PushConfig `json:"push"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Notify configuration
	Notify NotifyConfig `json:"notify"`
}

// NotifyConfig holds optional outbound notification settings
type NotifyConfig struct {
	// WebhookURL, if set, mirrors every broadcast to this endpoint.
	WebhookURL string `json:"webhook_url,omitempty" env:"FWD_WEBHOOK_URL"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"FWD_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"FWD_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"FWD_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"FWD_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"FWD_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"FWD_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"FWD_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"FWD_SERVER_SHUTDOWN_TIMEOUT"`
}

// PushConfig holds the websocket relay's listen configuration
type PushConfig struct {
	Address string `json:"address" env:"FWD_PUSH_ADDR"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string      `json:"adapter" env:"FWD_STORAGE_ADAPTER"`
	Redis   RedisConfig `json:"redis,omitempty"`
}

// RedisConfig holds the Redis connection settings exposed to operators.
// Pool sizing and timeouts keep the adapter defaults.
type RedisConfig struct {
	Addr     string `json:"addr" env:"FWD_REDIS_ADDR"`
	Password string `json:"password" env:"FWD_REDIS_PASSWORD"`
	DB       int    `json:"db" env:"FWD_REDIS_DB"`
}

// Options merges the operator settings into the adapter's defaults.
func (r RedisConfig) Options() redis.Config {
	cfg := redis.DefaultConfig()
	if r.Addr != "" {
		cfg.Addr = r.Addr
	}
	cfg.Password = r.Password
	cfg.DB = r.DB
	return cfg
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" env:"FWD_LOG_LEVEL"`
	Format string `json:"format" env:"FWD_LOG_FORMAT"`
	Output string `json:"output" env:"FWD_LOG_OUTPUT"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	// AdminAPIKey guards the admin routes; empty disables them entirely.
	AdminAPIKey     string          `json:"admin_api_key,omitempty" env:"FWD_ADMIN_API_KEY"`
	SessionTTL      time.Duration   `json:"session_ttl" env:"FWD_SESSION_TTL"`
	EnableRateLimit bool            `json:"enable_rate_limit" env:"FWD_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"FWD_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"FWD_RATE_LIMIT_BURST"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Push: PushConfig{
			Address: ":8081",
		},
		Storage: StorageConfig{
			Adapter: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			SessionTTL:      24 * time.Hour,
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				BurstSize:         20,
			},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Security.AdminAPIKey != "" {
		cfg.Security.AdminAPIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
