package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

type ScheduleRepository interface {
	UpsertMany(ctx context.Context, schedules []*model.ScheduledPayment) error
	// MarkOutcome moves the schedules registered under merchantUID to paid or
	// failed and reports how many rows matched.
	MarkOutcome(ctx context.Context, outcome ScheduleOutcome) (int64, error)
	Cancel(ctx context.Context, customerUID string, merchantUIDs []string, at time.Time) error
	FindByMerchantUID(ctx context.Context, merchantUID string) (*model.ScheduledPayment, error)
	List(ctx context.Context, filter ScheduleFilter, page pagination.Params) ([]*model.ScheduledPayment, int64, error)
}

type ScheduleOutcome struct {
	CustomerUID string // optional narrowing
	MerchantUID string
	Status      model.ScheduleStatus
	ImpUID      string
	FailReason  string
	At          time.Time
}

type ScheduleFilter struct {
	Status      string
	CustomerUID string
}

type scheduleRepoImpl struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepoImpl{
		db: db,
	}
}

func (r *scheduleRepoImpl) UpsertMany(ctx context.Context, schedules []*model.ScheduledPayment) error {
	if len(schedules) == 0 {
		return nil
	}
	excluded := excludedFunc(r.db)

	set := clause.AssignmentColumns([]string{"amount", "product_name", "schedule_at", "updated_at"})
	// A schedule the gateway already charged or failed keeps its outcome.
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "status"},
		Value: gorm.Expr(fmt.Sprintf(
			"CASE WHEN payment_schedules.status IN ('%s','%s') THEN payment_schedules.status ELSE %s END",
			model.SchedulePaid, model.ScheduleFailed, excluded("status"),
		)),
	})

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_uid"}, {Name: "merchant_uid"}},
		DoUpdates: set,
	}).Create(&schedules).Error
}

func (r *scheduleRepoImpl) MarkOutcome(ctx context.Context, o ScheduleOutcome) (int64, error) {
	updates := map[string]interface{}{
		"status":     o.Status,
		"updated_at": time.Now(),
	}
	if o.ImpUID != "" {
		updates["imp_uid"] = o.ImpUID
	}
	switch o.Status {
	case model.SchedulePaid:
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", o.At)
		updates["fail_reason"] = ""
	case model.ScheduleFailed:
		updates["fail_reason"] = o.FailReason
	}

	q := r.db.WithContext(ctx).Model(&model.ScheduledPayment{}).
		Where("merchant_uid = ?", o.MerchantUID)
	if o.CustomerUID != "" {
		q = q.Where("customer_uid = ?", o.CustomerUID)
	}
	// A charge the gateway already made is never turned back into a failure.
	if o.Status == model.ScheduleFailed {
		q = q.Where("status <> ?", model.SchedulePaid)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *scheduleRepoImpl) Cancel(ctx context.Context, customerUID string, merchantUIDs []string, at time.Time) error {
	if len(merchantUIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.ScheduledPayment{}).
		Where("customer_uid = ? AND merchant_uid IN ?", customerUID, merchantUIDs).
		Where("status = ?", model.ScheduleScheduled).
		Updates(map[string]interface{}{
			"status":       model.ScheduleCancelled,
			"cancelled_at": at,
			"updated_at":   time.Now(),
		}).Error
}

func (r *scheduleRepoImpl) FindByMerchantUID(ctx context.Context, merchantUID string) (*model.ScheduledPayment, error) {
	var s model.ScheduledPayment
	err := r.db.WithContext(ctx).
		Where("merchant_uid = ?", merchantUID).
		First(&s).Error

	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *scheduleRepoImpl) List(ctx context.Context, filter ScheduleFilter, page pagination.Params) ([]*model.ScheduledPayment, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.ScheduledPayment{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerUID != "" {
		q = q.Where("customer_uid = ?", filter.CustomerUID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var schedules []*model.ScheduledPayment
	err := q.Order("schedule_at ASC").Order("id ASC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&schedules).Error
	if err != nil {
		return nil, 0, err
	}

	return schedules, total, nil
}
