package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"portone-payment-api/internal/config"
	"portone-payment-api/internal/model"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Log{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "site_id", "site_a")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"site_id":"site_a"`) {
		t.Errorf("log output = %q", out)
	}
}

func TestNewPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Events{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "payment.events", RedisAddr: "localhost:6379", RedisChannel: "payment.events"}

	tests := []struct {
		sink string
		want string
	}{
		{"log", "*event.LogPublisher"},
		{"kafka", "*event.KafkaPublisher"},
		{"redis", "*event.RedisPublisher"},
		{"all", "event.Multi"},
	}
	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			cfg.Sink = tt.sink
			p, err := NewPublisher(cfg, logger)
			if err != nil {
				t.Fatal(err)
			}
			defer p.Close()
			if got := fmt.Sprintf("%T", p); got != tt.want {
				t.Errorf("publisher = %s, want %s", got, tt.want)
			}
		})
	}

	cfg.Sink = "nats"
	if _, err := NewPublisher(cfg, logger); err == nil {
		t.Error("expected error for unknown sink")
	}
}

func TestNewResolvesSiteDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Log:      config.Log{Level: "silent"},
		Database: config.Database{Driver: "sqlite", URL: filepath.Join(dir, "platform.db")},
		Tenant:   config.Tenant{DSNTemplate: filepath.Join(dir, "{db}.db"), AutoMigrate: true},
		Events:   config.Events{Sink: "log"},
		Portone:  config.Portone{BaseApiURL: "http://127.0.0.1:0", APIKey: "k", APISecret: "s"},
	}
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	ctx := context.Background()
	rawKey, err := a.Sites.RegisterSite(ctx, &model.Site{SiteID: "site_a"})
	if err != nil {
		t.Fatal(err)
	}

	store, err := a.Tenants.Resolve(ctx, "site_a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !store.DB.Migrator().HasTable(&model.Transaction{}) {
		t.Error("tenant tables not migrated")
	}
	siteID, err := a.Tenants.ResolveAPIKey(ctx, rawKey)
	if err != nil || siteID != "site_a" {
		t.Errorf("ResolveAPIKey = %q, %v", siteID, err)
	}
}
