package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portone-payment-api/internal/model"
)

// SiteRepository reads the platform's tenant registry.
type SiteRepository interface {
	FindActive(ctx context.Context, siteID string) (*model.Site, error)
	FindSiteIDByAPIKeyHash(ctx context.Context, hash string) (string, error)
	Upsert(ctx context.Context, site *model.Site) error
	AddAPIKey(ctx context.Context, key *model.SiteAPIKey) error
}

type siteRepoImpl struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepoImpl{
		db: db,
	}
}

func (r *siteRepoImpl) FindActive(ctx context.Context, siteID string) (*model.Site, error) {
	var site model.Site
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND status = ?", siteID, model.SiteActive).
		First(&site).Error
	if err != nil {
		return nil, err
	}

	return &site, nil
}

func (r *siteRepoImpl) FindSiteIDByAPIKeyHash(ctx context.Context, hash string) (string, error) {
	var key model.SiteAPIKey
	err := r.db.WithContext(ctx).
		Where("api_key_hash = ? AND status = ?", hash, model.SiteActive).
		First(&key).Error
	if err != nil {
		return "", err
	}

	return key.SiteID, nil
}

func (r *siteRepoImpl) Upsert(ctx context.Context, site *model.Site) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "domain", "db_name", "status", "updated_at"}),
	}).Create(site).Error
}

func (r *siteRepoImpl) AddAPIKey(ctx context.Context, key *model.SiteAPIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}
