// Package config loads statement-service configuration: built-in defaults,
// then an optional YAML file named by SB_CONFIG_FILE, then SB_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the statement service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Backend  BackendConfig  `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Builder  BuilderConfig  `yaml:"builder"`
	Log      LogConfig      `yaml:"log"`
	Version  string         `yaml:"version"`
}

// HTTPConfig holds the listener parameters.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// BackendConfig holds the strategy persistence service parameters.
type BackendConfig struct {
	URL        string        `yaml:"url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty URL
// disables drafts and the postgres settings store.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=1"`
	MinConns int32  `yaml:"min_conns" validate:"gte=0"`
}

// RedisConfig holds Redis parameters. An empty Addr disables the event bus
// and the redis settings store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" validate:"required"`
}

// BuilderConfig holds the statement builder defaults.
type BuilderConfig struct {
	DefaultTimeframe string `yaml:"default_timeframe" validate:"required"`
	ResetTimeframe   string `yaml:"reset_timeframe" validate:"required"`
	SettingsStore    string `yaml:"settings_store" validate:"oneof=memory redis postgres"`
	MaxCombinations  int    `yaml:"max_combinations" validate:"gt=0"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Load reads configuration from defaults, the optional YAML file and the
// environment, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("SB_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	overrideFromEnv(cfg)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8740",
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			URL:        "http://localhost:8729",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Prefix: "algomatic",
		},
		Builder: BuilderConfig{
			DefaultTimeframe: "3h",
			ResetTimeframe:   "1h",
			SettingsStore:    StoreMemory,
			MaxCombinations:  100_000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Version: "dev",
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("SB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SB_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ShutdownTimeout = d
		}
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("SB_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("SB_BACKEND_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.MaxRetries = n
		}
	}

	if v := os.Getenv("SB_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SB_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("SB_DB_MIN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MinConns = int32(n)
		}
	}

	if v := os.Getenv("SB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SB_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("SB_REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}

	if v := os.Getenv("SB_DEFAULT_TIMEFRAME"); v != "" {
		cfg.Builder.DefaultTimeframe = v
	}
	if v := os.Getenv("SB_RESET_TIMEFRAME"); v != "" {
		cfg.Builder.ResetTimeframe = v
	}
	if v := os.Getenv("SB_SETTINGS_STORE"); v != "" {
		cfg.Builder.SettingsStore = strings.ToLower(v)
	}
	if v := os.Getenv("SB_MAX_COMBINATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Builder.MaxCombinations = n
		}
	}

	if v := os.Getenv("SB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SB_VERSION"); v != "" {
		cfg.Version = v
	}
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	switch cfg.Builder.SettingsStore {
	case StoreRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("settings store %q requires SB_REDIS_ADDR", StoreRedis)
		}
	case StorePostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("settings store %q requires SB_DATABASE_URL", StorePostgres)
		}
	}

	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return fmt.Errorf("SB_DB_MIN_CONNS (%d) exceeds SB_DB_MAX_CONNS (%d)",
			cfg.Database.MinConns, cfg.Database.MaxConns)
	}
	return nil
}
