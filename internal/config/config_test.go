package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PORTONE_API_KEY", "key")
	t.Setenv("PORTONE_API_SECRET", "secret")
	t.Setenv("DB_URL", "root:pw@tcp(localhost:3306)/platform")
	t.Setenv("TENANT_DSN_TEMPLATE", "root:pw@tcp(localhost:3306)/{db}?parseTime=true")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Portone.BaseApiURL != "https://api.iamport.kr" || cfg.Portone.Timeout != 30*time.Second {
		t.Errorf("portone = %+v", cfg.Portone)
	}
	if cfg.Database.Driver != "mysql" || cfg.Events.Sink != "log" || cfg.HTTP.Port != "8080" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadKafkaBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("EVENTS_SINK", "kafka")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Events.KafkaBrokers)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Database: Database{Driver: "oracle"},
		Events:   Events{Sink: "kafka"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"PORTONE_API_KEY", "DB_URL", "TENANT_DSN_TEMPLATE", "DB_DRIVER", "EVENTS_KAFKA_BROKERS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
