// Package app wires configuration into the running payment core. Both the
// HTTP process and the ops CLI build on it.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"portone-payment-api/internal/client"
	"portone-payment-api/internal/config"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/service"
	"portone-payment-api/internal/tenant"
)

type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	PlatformDB *gorm.DB
	Portone    client.PortoneClient
	Tenants    tenant.Resolver
	Publisher  event.Publisher

	Payments      service.PaymentService
	Subscriptions service.SubscriptionService
	Webhooks      service.WebhookService
	Sites         service.SiteService
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	platformDB, err := client.OpenDB(cfg.Database.Driver, cfg.Database.URL, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("open platform database: %w", err)
	}
	if err := client.MigratePlatform(platformDB); err != nil {
		return nil, err
	}

	publisher, err := NewPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}

	var migrate func(*gorm.DB) error
	if cfg.Tenant.AutoMigrate {
		migrate = client.MigrateTenant
	}
	sites := repository.NewSiteRepository(platformDB)
	tenants := tenant.NewResolver(sites, TenantOpener(cfg), migrate)

	portoneClient := client.NewPortoneClient(&cfg.Portone)

	return &App{
		Config:     cfg,
		Logger:     logger,
		PlatformDB: platformDB,
		Portone:    portoneClient,
		Tenants:    tenants,
		Publisher:  publisher,

		Payments:      service.NewPaymentService(portoneClient, tenants, publisher, logger),
		Subscriptions: service.NewSubscriptionService(portoneClient, tenants, publisher, logger),
		Sites:         service.NewSiteService(sites),
		Webhooks: service.NewWebhookService(
			portoneClient, tenants,
			repository.NewWebhookLogRepository(platformDB),
			publisher, logger,
		),
	}, nil
}

// TenantOpener opens site databases with the platform driver and the tenant
// DSN template.
func TenantOpener(cfg *config.Config) tenant.Opener {
	return tenant.DSNOpener(cfg.Tenant.DSNTemplate, func(dsn string) (*gorm.DB, error) {
		return client.OpenDB(cfg.Database.Driver, dsn, cfg.Log.Level)
	})
}

func (a *App) Close() error {
	var errs []error
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if sqlDB, err := a.PlatformDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close platform database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func NewLogger(cfg config.Log, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewPublisher builds the event sink named by EVENTS_SINK.
func NewPublisher(cfg config.Events, logger *slog.Logger) (event.Publisher, error) {
	switch cfg.Sink {
	case "", "log":
		return event.NewLogPublisher(logger), nil
	case "kafka":
		return event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "redis":
		return event.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel), nil
	case "all":
		return event.Multi{
			event.NewLogPublisher(logger),
			event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic),
			event.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel),
		}, nil
	}
	return nil, fmt.Errorf("unsupported event sink %q", cfg.Sink)
}
