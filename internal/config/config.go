package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the exchange.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port                   int `yaml:"port"`
	ReadTimeoutSeconds     int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// EngineConfig controls matching-engine behavior.
type EngineConfig struct {
	CrankMaxEntries int `yaml:"crank_max_entries"` // default per-request queue drain cap
}

// RateLimitConfig controls the global request limiter. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// StorageConfig controls where the trade and payout history is persisted.
type StorageConfig struct {
	HistoryDSN string `yaml:"history_dsn"` // SQLite file path, ":memory:", or empty to disable
}

// Load reads configuration from the YAML file at path (optional), the
// .env file if present, and environment variables, in increasing order of
// precedence. It validates values and returns an error for any invalid one.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   8080,
			ReadTimeoutSeconds:     5,
			WriteTimeoutSeconds:    10,
			IdleTimeoutSeconds:     60,
			ShutdownTimeoutSeconds: 10,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Engine:    EngineConfig{CrankMaxEntries: 100},
		RateLimit: RateLimitConfig{RPS: 0, Burst: 1},
		Storage:   StorageConfig{HistoryDSN: ""},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.Load: invalid PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("HISTORY_DSN"); v != "" {
		cfg.Storage.HistoryDSN = v
	}
	if v := os.Getenv("CRANK_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.Load: invalid CRANK_MAX_ENTRIES: %w", err)
		}
		cfg.Engine.CrankMaxEntries = n
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config.Load: invalid RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.Load: invalid RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log level must be one of: debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", c.Log.Format)
	}
	if c.Engine.CrankMaxEntries < 1 {
		return fmt.Errorf("config: crank_max_entries must be >= 1, got %d", c.Engine.CrankMaxEntries)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("config: rate limit rps must be >= 0, got %f", c.RateLimit.RPS)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("config: rate limit burst must be >= 1, got %d", c.RateLimit.Burst)
	}
	return nil
}

// ReadTimeout returns the HTTP read timeout as a time.Duration.
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a time.Duration.
func (c *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a time.Duration.
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window as a time.Duration.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
