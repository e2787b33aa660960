package service

import (
	"context"
	"strings"
	"testing"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

func TestRegisterSiteIssuesWorkingKey(t *testing.T) {
	db := openTestDB(t, "platform.db", model.PlatformModels()...)
	sites := repository.NewSiteRepository(db)
	svc := NewSiteService(sites)
	ctx := context.Background()

	rawKey, err := svc.RegisterSite(ctx, &model.Site{SiteID: "site_a", Name: "Shop A"})
	if err != nil {
		t.Fatalf("RegisterSite: %v", err)
	}
	if !strings.HasPrefix(rawKey, "sk_") {
		t.Errorf("raw key = %q", rawKey)
	}

	site, err := svc.GetSite(ctx, "site_a")
	if err != nil {
		t.Fatal(err)
	}
	if site.DBName != "site_a" || site.Status != model.SiteActive {
		t.Errorf("site = %+v", site)
	}

	siteID, err := sites.FindSiteIDByAPIKeyHash(ctx, tenant.HashAPIKey(rawKey))
	if err != nil || siteID != "site_a" {
		t.Errorf("key lookup = %q, %v", siteID, err)
	}

	var stored int64
	db.Model(&model.SiteAPIKey{}).Where("api_key_hash = ?", rawKey).Count(&stored)
	if stored != 0 {
		t.Error("raw key stored in plain text")
	}
}

func TestRegisterSiteRequiresID(t *testing.T) {
	db := openTestDB(t, "platform.db", model.PlatformModels()...)
	_, err := NewSiteService(repository.NewSiteRepository(db)).RegisterSite(context.Background(), &model.Site{})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestGetSiteUnknown(t *testing.T) {
	db := openTestDB(t, "platform.db", model.PlatformModels()...)
	_, err := NewSiteService(repository.NewSiteRepository(db)).GetSite(context.Background(), "site_x")
	if apperr.KindOf(err) != apperr.KindTenantNotFound {
		t.Fatalf("err = %v, want tenant not found", err)
	}
}
