package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Registry  RegistryConfig
	Install   InstallConfig
	Data      DataConfig
	Auth      AuthConfig
	Runtime   RuntimeConfig
}

// ServerConfig holds developer console HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8700"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowOrigins restricts which console origins may call the API. Empty allows any.
	AllowOrigins []string `envconfig:"CORS_ORIGINS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting for the console API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// RegistryConfig selects and tunes the extension registry source.
type RegistryConfig struct {
	URL      string        `envconfig:"REGISTRY_URL" default:"http://localhost:8080/api/v1"`
	Dir      string        `envconfig:"REGISTRY_DIR"`
	CacheDir string        `envconfig:"REGISTRY_CACHE_DIR"`
	Timeout  time.Duration `envconfig:"REGISTRY_TIMEOUT" default:"30s"`
}

// InstallConfig points at the install-state API. Empty URL keeps installs in memory.
type InstallConfig struct {
	URL string `envconfig:"INSTALL_API_URL"`
}

// DataConfig points at the data capability backend.
type DataConfig struct {
	URL               string  `envconfig:"DATA_API_URL" default:"http://localhost:8080/api/v1"`
	RequestsPerSecond float64 `envconfig:"DATA_RPS" default:"0"`
}

// AuthConfig carries externally issued credentials.
type AuthConfig struct {
	Token  string `envconfig:"AUTH_TOKEN"`
	APIKey string `envconfig:"API_KEY"`
}

// RuntimeConfig bounds the extension runtime.
type RuntimeConfig struct {
	HostVersion      string        `envconfig:"HOST_VERSION" default:"1.0.0"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"10s"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"30s"`
	ScriptTimeout    time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s"`
	LogRetention     int           `envconfig:"LOG_RETENTION" default:"200"`
	NotifyTTL        time.Duration `envconfig:"NOTIFY_TTL" default:"6s"`
	EventHistory     int           `envconfig:"EVENT_HISTORY" default:"50"`
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
			Port: "8700",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Registry: RegistryConfig{
			URL:     "http://localhost:8080/api/v1",
			Timeout: 30 * time.Second,
		},
		Data: DataConfig{
			URL: "http://localhost:8080/api/v1",
		},
		Runtime: RuntimeConfig{
			HostVersion:      "1.0.0",
			HandshakeTimeout: 10 * time.Second,
			CallTimeout:      30 * time.Second,
			ScriptTimeout:    5 * time.Second,
			LogRetention:     200,
			NotifyTTL:        6 * time.Second,
			EventHistory:     50,
		},
	}
}

// Addr returns the listen address of the console server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
