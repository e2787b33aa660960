package repository

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

func TestWebhookLogAppendAndFilter(t *testing.T) {
	repo := NewWebhookLogRepository(setupTestDB(t))
	ctx := context.Background()

	entries := []*model.WebhookLog{
		{SiteID: "site_a", Source: "portone", ImpUID: "imp_1", Status: model.WebhookProcessed, Payload: datatypes.JSON(`{"imp_uid":"imp_1"}`)},
		{SiteID: "site_a", Source: "portone", ImpUID: "imp_1", Status: model.WebhookProcessed, Payload: datatypes.JSON(`{"imp_uid":"imp_1"}`)},
		{SiteID: "site_b", Source: "manual", ImpUID: "imp_2", Status: model.WebhookError},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.ID == "" {
			t.Fatalf("id not assigned")
		}
	}

	logs, err := repo.List(ctx, WebhookLogFilter{ImpUID: "imp_1"}, pagination.New(1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("imp_1 logs = %d, want 2", len(logs))
	}

	logs, _ = repo.List(ctx, WebhookLogFilter{Source: "manual", Status: string(model.WebhookError)}, pagination.New(1, 10))
	if len(logs) != 1 || logs[0].SiteID != "site_b" {
		t.Errorf("manual logs = %+v", logs)
	}
}
