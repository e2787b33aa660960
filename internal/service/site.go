package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

type SiteService interface {
	// RegisterSite creates or updates a site and returns a freshly issued raw
	// API key. Only the key's hash is stored.
	RegisterSite(ctx context.Context, site *model.Site) (string, error)
	GetSite(ctx context.Context, siteID string) (*model.Site, error)
}

type siteServiceImpl struct {
	siteRepo repository.SiteRepository
}

func NewSiteService(
	siteRepo repository.SiteRepository,
) SiteService {
	return &siteServiceImpl{
		siteRepo: siteRepo,
	}
}

func (s *siteServiceImpl) RegisterSite(ctx context.Context, site *model.Site) (string, error) {
	if site.SiteID == "" {
		return "", apperr.Validation("site_id", "is required")
	}
	if site.DBName == "" {
		site.DBName = site.SiteID
	}
	if site.Status == "" {
		site.Status = model.SiteActive
	}

	if err := s.siteRepo.Upsert(ctx, site); err != nil {
		return "", &apperr.PersistenceError{Op: "save site", Err: err}
	}

	rawKey := "sk_" + uuid.NewString()
	err := s.siteRepo.AddAPIKey(ctx, &model.SiteAPIKey{
		SiteID:     site.SiteID,
		APIKeyHash: tenant.HashAPIKey(rawKey),
		Name:       fmt.Sprintf("%s default", site.SiteID),
		Status:     model.SiteActive,
	})
	if err != nil {
		return "", &apperr.PersistenceError{Op: "save api key", Err: err}
	}
	return rawKey, nil
}

func (s *siteServiceImpl) GetSite(ctx context.Context, siteID string) (*model.Site, error) {
	site, err := s.siteRepo.FindActive(ctx, siteID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &apperr.TenantNotFoundError{SiteID: siteID}
		}
		return nil, &apperr.PersistenceError{Op: "find site", Err: err}
	}
	return site, nil
}
