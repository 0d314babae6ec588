package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Broker   BrokerConfig   `koanf:"broker"`
	Partner  PartnerConfig  `koanf:"partner"`
	Retry    RetryConfig    `koanf:"retry"`
	Breaker  BreakerConfig  `koanf:"breaker"`
	Bulkhead BulkheadConfig `koanf:"bulkhead"`
	Outbox   OutboxConfig   `koanf:"outbox"`
	Intake   IntakeConfig   `koanf:"intake"`
	Rules    RulesConfig    `koanf:"rules"`
	Logger   LoggerConfig   `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type BrokerConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	Exchange        string        `koanf:"exchange" validate:"required"`
	Prefetch        int           `koanf:"prefetch"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	MaxRedeliveries int           `koanf:"max_redeliveries"`
}

type PartnerConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required"`
	ConnTimeout time.Duration `koanf:"conn_timeout" validate:"required"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int           `koanf:"max_retries"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	Cooldown            time.Duration `koanf:"cooldown"`
}

type BulkheadConfig struct {
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

type OutboxConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	BatchSize int           `koanf:"batch_size" validate:"required"`
}

type IntakeConfig struct {
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// RulesConfig holds the dispatch allow-lists. Both lists are optional: an
// empty list admits every value.
type RulesConfig struct {
	AllowedPartners []string `koanf:"allowed_partners"`
	AllowedTypes    []string `koanf:"allowed_types"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("HUB_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "HUB_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	applyDefaults(mainConfig)

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 100 * time.Millisecond
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 5
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = 60 * time.Second
	}
	if cfg.Bulkhead.MaxConcurrent <= 0 {
		cfg.Bulkhead.MaxConcurrent = 10
	}
	if cfg.Intake.LockTTL <= 0 {
		cfg.Intake.LockTTL = 5 * time.Second
	}
	if cfg.Broker.Prefetch <= 0 {
		cfg.Broker.Prefetch = 16
	}
	if cfg.Broker.RetryDelay <= 0 {
		cfg.Broker.RetryDelay = 10 * time.Second
	}
	if cfg.Broker.MaxRedeliveries <= 0 {
		cfg.Broker.MaxRedeliveries = 5
	}
}
