package config

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Env.
const EnvPrefix = "TAXENGINE"

// Env holds runtime configuration for the engine binary.
type Env struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN switches the catalog and ledgers to PostgreSQL when set.
	PGDSN string `envconfig:"PG_DSN"`
	// RedisAddr switches the ledger lock to Redis when set.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	LockTTL   time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	SeedFile              string `envconfig:"SEED_FILE"`
	VatCreditMaxAgeMonths int    `envconfig:"VAT_CREDIT_MAX_AGE_MONTHS" default:"0"`
	BatchWorkers          int    `envconfig:"BATCH_WORKERS" default:"4"`
}

// LoadEnv reads configuration from TAXENGINE_* environment variables.
func LoadEnv() (*Env, error) {
	var cfg Env
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	if cfg.VatCreditMaxAgeMonths < 0 {
		return nil, errors.New("vat credit max age must not be negative")
	}
	if cfg.LockTTL <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &cfg, nil
}

// NewLogger returns a slog.Logger writing to w in the configured format.
func NewLogger(cfg *Env, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg)}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(cfg *Env) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
