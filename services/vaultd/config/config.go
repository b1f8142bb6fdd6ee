package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const defaultListen = ":8090"

// Config captures the runtime settings for the vault daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	EngineConfig  string          `yaml:"engine_config"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Audit         AuditConfig     `yaml:"audit"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	// StreamOrigins lists the Origin patterns accepted by the websocket
	// event feed. Empty accepts same-origin clients only.
	StreamOrigins []string `yaml:"stream_origins"`
}

// AuthConfig maps bearer tokens to the account they act for. JWT enables
// signed tokens whose subject is the account.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
	JWT    JWTConfig         `yaml:"jwt"`
}

// JWTConfig configures HMAC token verification. An empty secret disables it.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	SecretEnv string        `yaml:"secret_env"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig throttles requests per client.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AuditConfig selects the event log database. Empty disables it.
type AuditConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig enables OTLP export.
type TelemetryConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	Metrics  bool              `yaml:"metrics"`
	Traces   bool              `yaml:"traces"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.EngineConfig = strings.TrimSpace(cfg.EngineConfig)
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerMinute
	}
	cfg.Audit.DSN = strings.TrimSpace(cfg.Audit.DSN)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	if cfg.Logging.File != "" && cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg.EngineConfig == "" {
		return fmt.Errorf("engine_config is required")
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	if (cfg.Telemetry.Metrics || cfg.Telemetry.Traces) && cfg.Telemetry.Endpoint == "" {
		if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) == "" {
			return fmt.Errorf("telemetry: endpoint required when exporters are enabled")
		}
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	tokens := make(map[string]string, len(cfg.Tokens))
	for token, account := range cfg.Tokens {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		tokens[trimmed] = strings.TrimSpace(account)
	}
	cfg.Tokens = tokens

	cfg.JWT.SecretEnv = strings.TrimSpace(cfg.JWT.SecretEnv)
	if cfg.JWT.SecretEnv != "" {
		cfg.JWT.Secret = os.Getenv(cfg.JWT.SecretEnv)
	}
	cfg.JWT.Secret = strings.TrimSpace(cfg.JWT.Secret)
	cfg.JWT.Issuer = strings.TrimSpace(cfg.JWT.Issuer)
	cfg.JWT.Audience = strings.TrimSpace(cfg.JWT.Audience)
}

func (cfg AuthConfig) validate() error {
	if len(cfg.Tokens) == 0 && cfg.JWT.Secret == "" {
		return fmt.Errorf("at least one api token or a jwt secret must be configured")
	}
	if cfg.JWT.Secret != "" && len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	if cfg.JWT.ClockSkew < 0 {
		return fmt.Errorf("jwt clock_skew must not be negative")
	}
	for _, account := range cfg.Tokens {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("token account %q is not a hex address", account)
		}
	}
	return nil
}
