// Package config loads and validates the service configuration from YAML
// plus environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tokenwatch/rater/internal/advisory"
	"github.com/tokenwatch/rater/internal/engine"
	"github.com/tokenwatch/rater/internal/persistence/postgres"
)

// LogConfig tunes the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig wires the rating cache and the momentum history store.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	DB             int           `yaml:"db" validate:"gte=0"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	MomentumTTL    time.Duration `yaml:"momentum_ttl"`
	EnableCache    bool          `yaml:"enable_cache"`
	EnableMomentum bool          `yaml:"enable_momentum"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Log      LogConfig       `yaml:"log"`
	Server   ServerConfig    `yaml:"server"`
	Engine   engine.Config   `yaml:"engine"`
	Advisory advisory.Config `yaml:"advisory"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    RedisConfig     `yaml:"redis"`
}

// Default returns the full default configuration.
func Default() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Engine:   engine.DefaultConfig(),
		Advisory: advisory.DefaultConfig(),
		Postgres: postgres.DefaultConfig(),
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			CacheTTL:    30 * time.Second,
			MomentumTTL: 7 * 24 * time.Hour,
		},
	}
}

// Load reads the optional .env file, the YAML document at path (skipped when
// empty), applies environment overrides, and validates the result.
func Load(path string) (AppConfig, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// applyEnv overrides the secrets and endpoints that deployments inject via
// environment rather than the config file.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("RATER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RATER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RATER_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("RATER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RATER_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("RATER_ADVISORY_URL"); v != "" {
		cfg.Advisory.BaseURL = v
	}
	if v := os.Getenv("RATER_ADVISORY_API_KEY"); v != "" {
		cfg.Advisory.APIKey = v
	}
}

// Validate runs struct-tag validation plus the engine's own invariants.
func (c AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Engine.AdvisoryEnabled && c.Advisory.BaseURL == "" {
		return fmt.Errorf("config validation: advisory enabled without base_url")
	}
	if (c.Redis.EnableCache || c.Redis.EnableMomentum) && c.Redis.Addr == "" {
		return fmt.Errorf("config validation: redis features enabled without addr")
	}
	return nil
}
