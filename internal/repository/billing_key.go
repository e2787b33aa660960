package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

type BillingKeyRepository interface {
	Upsert(ctx context.Context, key *model.BillingKey) error
	SoftDelete(ctx context.Context, customerUID string, at time.Time) error
	Get(ctx context.Context, customerUID string) (*model.BillingKey, error)
	List(ctx context.Context, status string, page pagination.Params) ([]*model.BillingKey, int64, error)
	ListSubscriptions(ctx context.Context, status string, page pagination.Params) ([]*model.Subscription, int64, error)
}

type billingKeyRepoImpl struct {
	db *gorm.DB
}

func NewBillingKeyRepository(db *gorm.DB) BillingKeyRepository {
	return &billingKeyRepoImpl{
		db: db,
	}
}

// Upsert re-activates a previously deleted key for the same customer.
func (r *billingKeyRepoImpl) Upsert(ctx context.Context, key *model.BillingKey) error {
	key.Status = model.BillingKeyActive
	key.DeletedAt = nil
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_uid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pg_provider", "pg_id", "card_name", "card_code", "card_number",
			"customer_name", "customer_tel", "customer_email",
			"status", "deleted_at", "updated_at",
		}),
	}).Create(key).Error
}

// SoftDelete flips the key to deleted, creating the row when it was never
// stored locally so the deletion is still recorded.
func (r *billingKeyRepoImpl) SoftDelete(ctx context.Context, customerUID string, at time.Time) error {
	key := &model.BillingKey{
		CustomerUID: customerUID,
		Status:      model.BillingKeyDeleted,
		DeletedAt:   &at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_uid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     model.BillingKeyDeleted,
			"deleted_at": at,
			"updated_at": time.Now(),
		}),
	}).Create(key).Error
}

func (r *billingKeyRepoImpl) Get(ctx context.Context, customerUID string) (*model.BillingKey, error) {
	var key model.BillingKey
	err := r.db.WithContext(ctx).
		Where("customer_uid = ?", customerUID).
		First(&key).Error

	if err != nil {
		return nil, err
	}

	return &key, nil
}

func (r *billingKeyRepoImpl) List(ctx context.Context, status string, page pagination.Params) ([]*model.BillingKey, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.BillingKey{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var keys []*model.BillingKey
	err := q.Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&keys).Error
	if err != nil {
		return nil, 0, err
	}

	return keys, total, nil
}

// ListSubscriptions joins every billing key with the number of payments made
// by its customer and the sum of the paid ones.
func (r *billingKeyRepoImpl) ListSubscriptions(ctx context.Context, status string, page pagination.Params) ([]*model.Subscription, int64, error) {
	q := r.db.WithContext(ctx).Table("billing_keys AS bk")
	if status != "" {
		q = q.Where("bk.status = ?", status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var subs []*model.Subscription
	err := q.Select(`bk.*,
			(SELECT COUNT(*) FROM transactions t WHERE t.customer_uid = bk.customer_uid) AS payment_count,
			(SELECT COALESCE(SUM(t.amount), 0) FROM transactions t WHERE t.customer_uid = bk.customer_uid AND t.status = ?) AS total_paid`,
		model.TransactionPaid).
		Order("bk.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Scan(&subs).Error
	if err != nil {
		return nil, 0, err
	}

	return subs, total, nil
}
