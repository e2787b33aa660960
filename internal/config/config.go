package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`

	Database Database `envPrefix:"DB_"`
	Tenant   Tenant   `envPrefix:"TENANT_"`
	Portone  Portone  `envPrefix:"PORTONE_"`
	Events   Events   `envPrefix:"EVENTS_"`

	PlatformAdminKey string `env:"PLATFORM_ADMIN_KEY"`
}

type Portone struct {
	BaseApiURL   string        `env:"BASE_API_URL" envDefault:"https://api.iamport.kr"`
	APIKey       string        `env:"API_KEY"`
	APISecret    string        `env:"API_SECRET"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
	SafetyMargin time.Duration `env:"TOKEN_SAFETY_MARGIN" envDefault:"60s"`
	RateLimit    float64       `env:"RATE_LIMIT" envDefault:"0"`
}

// Database is the platform database holding sites, api keys and webhook logs.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"mysql"`
	URL    string `env:"URL"`
}

// Tenant describes how a site's db_name becomes a connection string.
// DSNTemplate must contain the {db} placeholder.
type Tenant struct {
	DSNTemplate string `env:"DSN_TEMPLATE"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
}

type Events struct {
	Sink         string   `env:"SINK" envDefault:"log"` // log, kafka, redis, all
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"payment.events"`
	RedisAddr    string   `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisChannel string   `env:"REDIS_CHANNEL" envDefault:"payment.events"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Portone.APIKey == "" || c.Portone.APISecret == "" {
		errs = append(errs, errors.New("PORTONE_API_KEY and PORTONE_API_SECRET are required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if !strings.Contains(c.Tenant.DSNTemplate, "{db}") {
		errs = append(errs, errors.New("TENANT_DSN_TEMPLATE must contain the {db} placeholder"))
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	switch c.Events.Sink {
	case "log", "kafka", "redis", "all":
	default:
		errs = append(errs, fmt.Errorf("unsupported EVENTS_SINK %q", c.Events.Sink))
	}
	if (c.Events.Sink == "kafka" || c.Events.Sink == "all") && len(c.Events.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("EVENTS_KAFKA_BROKERS is required for the kafka sink"))
	}
	return errors.Join(errs...)
}
