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

// DatabaseConfig holds the postgres store settings. Disabled by default;
// the CLI falls back to the single-file store when no database is wired.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// MirrorConfig holds the redis hot-status mirror settings.
type MirrorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	DB          int           `yaml:"db" validate:"gte=0"`
	Key         string        `yaml:"key"`
	TTL         time.Duration `yaml:"ttl"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// NotifyConfig holds the kafka transition-event publisher settings.
type NotifyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HTTPConfig holds the read-only ops server settings.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" validate:"gt=0"`
	RateBurst    int           `yaml:"rate_burst" validate:"gt=0"`
}

// AppConfig is the runtime (non-policy) configuration.
type AppConfig struct {
	LogLevel     string         `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	StateDir     string         `yaml:"state_dir" validate:"required"`
	ArtifactsDir string         `yaml:"artifacts_dir" validate:"required"`
	PolicyPath   string         `yaml:"policy_path"`
	Database     DatabaseConfig `yaml:"database"`
	Mirror       MirrorConfig   `yaml:"mirror"`
	Notify       NotifyConfig   `yaml:"notify"`
	HTTP         HTTPConfig     `yaml:"http"`
}

// DefaultAppConfig returns local-first defaults: file store, local ops
// server, mirror and notifier off.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		LogLevel:     "info",
		StateDir:     "data/rollouts",
		ArtifactsDir: "artifacts/rollouts",
		Database: DatabaseConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    10 * time.Second,
		},
		Mirror: MirrorConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			Key:         "stratroll:rollout:status",
			TTL:         5 * time.Minute,
			DialTimeout: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled: false,
			Topic:   "stratroll.rollout.events",
		},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8093,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimitRPS: 10,
			RateBurst:    20,
		},
	}
}

// LoadAppConfig reads a YAML runtime config and applies environment
// overrides. An empty path keeps the defaults (env still applies).
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("STRATROLL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STRATROLL_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("STRATROLL_ARTIFACTS_DIR"); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := os.Getenv("STRATROLL_POLICY"); v != "" {
		cfg.PolicyPath = v
	}
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Enabled = b
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Mirror.Addr = v
		cfg.Mirror.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notify.Brokers = strings.Split(v, ",")
		cfg.Notify.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}
