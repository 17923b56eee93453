package rda

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// =====================================
// Environment Configuration
// =====================================

// EnvPrefix marks the environment variables this layer reads.
// Double underscores nest, so RDA_RETRY__MAX_RETRIES sets retry.max_retries.
const EnvPrefix = "RDA_"

// AppConfig is everything the layer reads from the environment
type AppConfig struct {
	Endpoint   string `koanf:"endpoint" validate:"required"`
	Credential string `koanf:"credential" validate:"required"`
	Schema     string `koanf:"schema"`

	AutoRefresh    bool `koanf:"auto_refresh"`
	PersistSession bool `koanf:"persist_session"`

	ProbeCollections []string `koanf:"probe_collections"`

	Log   LogConfig     `koanf:"log"`
	Retry RetrySettings `koanf:"retry"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// RetrySettings mirrors RetryPolicy with flat env-friendly fields
type RetrySettings struct {
	MaxRetries     int     `koanf:"max_retries" validate:"gte=0"`
	InitialDelayMs int64   `koanf:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int64   `koanf:"max_delay_ms" validate:"gte=0"`
	BackoffFactor  float64 `koanf:"backoff_factor" validate:"gte=0"`
}

// Policy converts the settings into a RetryPolicy, keeping defaults
// for anything left unset.
func (s RetrySettings) Policy() RetryPolicy {
	policy := DefaultRetryPolicy()
	if s.MaxRetries >= 0 {
		policy.MaxRetries = s.MaxRetries
	}
	if s.InitialDelayMs > 0 {
		policy.InitialDelay = time.Duration(s.InitialDelayMs) * time.Millisecond
	}
	if s.MaxDelayMs > 0 {
		policy.MaxDelay = time.Duration(s.MaxDelayMs) * time.Millisecond
	}
	if s.BackoffFactor >= 1 {
		policy.BackoffFactor = s.BackoffFactor
	}
	return policy
}

// ConnectionConfig converts the loaded settings into a ConnectionConfig
func (c *AppConfig) ConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Endpoint:         c.Endpoint,
		Credential:       c.Credential,
		Schema:           c.Schema,
		AutoRefresh:      c.AutoRefresh,
		PersistSession:   c.PersistSession,
		ProbeCollections: c.ProbeCollections,
	}
}

func defaultAppConfig() *AppConfig {
	def := DefaultRetryPolicy()
	return &AppConfig{
		Schema:         "public",
		AutoRefresh:    true,
		PersistSession: true,
		Log: LogConfig{
			Level: "info",
		},
		Retry: RetrySettings{
			MaxRetries:     def.MaxRetries,
			InitialDelayMs: def.InitialDelay.Milliseconds(),
			MaxDelayMs:     def.MaxDelay.Milliseconds(),
			BackoffFactor:  def.BackoffFactor,
		},
	}
}

// LoadConfig reads RDA_* environment variables into an AppConfig,
// loading a .env file first when one exists in the working directory.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := defaultAppConfig()

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
