package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

// WebhookLogRepository is append-only; entries are never updated.
type WebhookLogRepository interface {
	Create(ctx context.Context, entry *model.WebhookLog) error
	List(ctx context.Context, filter WebhookLogFilter, page pagination.Params) ([]*model.WebhookLog, error)
}

type WebhookLogFilter struct {
	SiteID string
	Source string
	Status string
	ImpUID string
}

type webhookLogRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) WebhookLogRepository {
	return &webhookLogRepositoryImpl{db: db}
}

func (r *webhookLogRepositoryImpl) Create(ctx context.Context, entry *model.WebhookLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *webhookLogRepositoryImpl) List(ctx context.Context, filter WebhookLogFilter, page pagination.Params) ([]*model.WebhookLog, error) {
	q := r.db.WithContext(ctx).Model(&model.WebhookLog{})
	if filter.SiteID != "" {
		q = q.Where("site_id = ?", filter.SiteID)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ImpUID != "" {
		q = q.Where("imp_uid = ?", filter.ImpUID)
	}

	var logs []*model.WebhookLog
	err := q.Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return logs, nil
}
