package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/client"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

type SubscriptionService interface {
	IssueBillingKey(ctx context.Context, siteID string, req *dto.IssueBillingKeyRequest) (*dto.BillingKeyView, error)
	GetBillingKey(ctx context.Context, siteID, customerUID string) (*dto.BillingKeyView, error)
	ListBillingKeys(ctx context.Context, siteID string, customerUIDs []string, page pagination.Params) (*dto.BillingKeyList, error)
	DeleteBillingKey(ctx context.Context, siteID, customerUID string) (*dto.BillingKeyView, error)
	PayWithBillingKey(ctx context.Context, siteID string, req *dto.PayWithBillingKeyRequest) (*dto.PaymentView, error)

	Schedule(ctx context.Context, siteID string, req *dto.ScheduleRequest) (*dto.ScheduleResult, error)
	Unschedule(ctx context.Context, siteID, customerUID string, req *dto.UnscheduleRequest) (*dto.ScheduleResult, error)
	GetSchedulesByCustomer(ctx context.Context, siteID, customerUID string, page int) (*model.PortoneScheduleList, error)
	GetScheduleByMerchantUID(ctx context.Context, siteID, merchantUID string) (*model.PortoneSchedule, error)
	ListSchedules(ctx context.Context, siteID string, filter repository.ScheduleFilter, page pagination.Params) (*dto.ScheduleList, error)

	ListSubscriptions(ctx context.Context, siteID, status string, page pagination.Params) (*dto.SubscriptionList, error)
}

type subscriptionServiceImpl struct {
	portoneClient client.PortoneClient
	tenants       tenant.Resolver
	reconciler    *reconciler
	logger        *slog.Logger
	now           func() time.Time
}

func NewSubscriptionService(
	portoneClient client.PortoneClient,
	tenants tenant.Resolver,
	publisher event.Publisher,
	logger *slog.Logger,
) SubscriptionService {
	return &subscriptionServiceImpl{
		portoneClient: portoneClient,
		tenants:       tenants,
		reconciler:    &reconciler{publisher: publisher, logger: logger, now: time.Now},
		logger:        logger,
		now:           time.Now,
	}
}

// IssueBillingKey registers a card at the gateway. The card number in req is
// forwarded once and never stored or echoed; only the gateway's masked
// summary is kept.
func (s *subscriptionServiceImpl) IssueBillingKey(ctx context.Context, siteID string, req *dto.IssueBillingKeyRequest) (*dto.BillingKeyView, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	key, err := s.portoneClient.IssueBillingKey(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone issue billing key: %w", err)
	}

	view := &dto.BillingKeyView{PortoneBillingKey: key}
	local := toBillingKey(key)
	if local.CustomerUID == "" {
		local.CustomerUID = req.CustomerUID
	}
	if err := store.BillingKeys.Upsert(ctx, local); err != nil {
		view.SyncError = s.outOfSync(ctx, siteID, "save billing key", req.CustomerUID, err)
		return view, nil
	}
	view.Local = local
	return view, nil
}

func (s *subscriptionServiceImpl) GetBillingKey(ctx context.Context, siteID, customerUID string) (*dto.BillingKeyView, error) {
	if customerUID == "" {
		return nil, apperr.Validation("customer_uid", "is required")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	key, err := s.portoneClient.GetBillingKey(ctx, customerUID)
	if err != nil {
		return nil, fmt.Errorf("portone get billing key: %w", err)
	}

	view := &dto.BillingKeyView{PortoneBillingKey: key}
	if local, err := store.BillingKeys.Get(ctx, customerUID); err == nil {
		view.Local = local
	}
	return view, nil
}

// ListBillingKeys asks the gateway for the given customers, or pages through
// the locally stored keys when none are given.
func (s *subscriptionServiceImpl) ListBillingKeys(ctx context.Context, siteID string, customerUIDs []string, page pagination.Params) (*dto.BillingKeyList, error) {
	if len(customerUIDs) > pagination.MaxLimit {
		return nil, apperr.Validation("customer_uid", "at most %d customers per request", pagination.MaxLimit)
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if len(customerUIDs) == 0 {
		rows, total, err := store.BillingKeys.List(ctx, "", page)
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "list billing keys", Err: err}
		}
		views := make([]*dto.BillingKeyView, 0, len(rows))
		for _, row := range rows {
			views = append(views, &dto.BillingKeyView{Local: row})
		}
		return &dto.BillingKeyList{BillingKeys: views, Total: total, Page: page.Page, Limit: page.Limit}, nil
	}

	keys, err := s.portoneClient.ListBillingKeys(ctx, customerUIDs)
	if err != nil {
		return nil, fmt.Errorf("portone list billing keys: %w", err)
	}
	views := make([]*dto.BillingKeyView, 0, len(keys))
	for i := range keys {
		views = append(views, &dto.BillingKeyView{PortoneBillingKey: &keys[i]})
	}
	return &dto.BillingKeyList{BillingKeys: views, Total: int64(len(views))}, nil
}

func (s *subscriptionServiceImpl) DeleteBillingKey(ctx context.Context, siteID, customerUID string) (*dto.BillingKeyView, error) {
	if customerUID == "" {
		return nil, apperr.Validation("customer_uid", "is required")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	key, err := s.portoneClient.DeleteBillingKey(ctx, customerUID)
	if err != nil {
		return nil, fmt.Errorf("portone delete billing key: %w", err)
	}

	view := &dto.BillingKeyView{PortoneBillingKey: key}
	if err := store.BillingKeys.SoftDelete(ctx, customerUID, s.now().UTC()); err != nil {
		view.SyncError = s.outOfSync(ctx, siteID, "soft delete billing key", customerUID, err)
		return view, nil
	}
	if local, err := store.BillingKeys.Get(ctx, customerUID); err == nil {
		view.Local = local
	}
	return view, nil
}

// PayWithBillingKey charges a stored card. A key known to be deleted locally
// is refused before the gateway is called.
func (s *subscriptionServiceImpl) PayWithBillingKey(ctx context.Context, siteID string, req *dto.PayWithBillingKeyRequest) (*dto.PaymentView, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if key, err := store.BillingKeys.Get(ctx, req.CustomerUID); err == nil && key.Status == model.BillingKeyDeleted {
		return nil, apperr.Validation("customer_uid", "billing key for %s was deleted", req.CustomerUID)
	}

	payment, err := s.portoneClient.PayWithBillingKey(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone pay with billing key: %w", err)
	}

	local, syncErr := s.reconciler.syncOutbound(ctx, store, payment)
	return &dto.PaymentView{PortonePayment: payment, Local: local, SyncError: syncErr}, nil
}

func (s *subscriptionServiceImpl) Schedule(ctx context.Context, siteID string, req *dto.ScheduleRequest) (*dto.ScheduleResult, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	now := s.now().Unix()
	for i, item := range req.Schedules {
		if item.ScheduleAt <= now {
			return nil, apperr.Validation(fmt.Sprintf("schedules[%d].schedule_at", i), "must be in the future")
		}
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	scheduled, err := s.portoneClient.SchedulePayments(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portone schedule payments: %w", err)
	}

	rows := make([]*model.ScheduledPayment, 0, len(req.Schedules))
	for _, item := range req.Schedules {
		rows = append(rows, &model.ScheduledPayment{
			CustomerUID: req.CustomerUID,
			MerchantUID: item.MerchantUID,
			Amount:      item.Amount,
			ProductName: item.Name,
			ScheduleAt:  time.Unix(item.ScheduleAt, 0).UTC(),
			Status:      model.ScheduleScheduled,
		})
	}

	result := &dto.ScheduleResult{Schedules: scheduled}
	if err := store.Schedules.UpsertMany(ctx, rows); err != nil {
		result.SyncError = s.outOfSync(ctx, siteID, "save schedules", req.CustomerUID, err)
	}
	return result, nil
}

func (s *subscriptionServiceImpl) Unschedule(ctx context.Context, siteID, customerUID string, req *dto.UnscheduleRequest) (*dto.ScheduleResult, error) {
	if customerUID == "" {
		return nil, apperr.Validation("customer_uid", "is required")
	}
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	revoked, err := s.portoneClient.Unschedule(ctx, customerUID, req.MerchantUIDs)
	if err != nil {
		return nil, fmt.Errorf("portone unschedule payments: %w", err)
	}

	merchantUIDs := []string(req.MerchantUIDs)
	if len(revoked) > 0 {
		merchantUIDs = make([]string, 0, len(revoked))
		for _, r := range revoked {
			merchantUIDs = append(merchantUIDs, r.MerchantUID)
		}
	}

	result := &dto.ScheduleResult{Schedules: revoked}
	if err := store.Schedules.Cancel(ctx, customerUID, merchantUIDs, s.now().UTC()); err != nil {
		result.SyncError = s.outOfSync(ctx, siteID, "cancel schedules", customerUID, err)
	}
	return result, nil
}

func (s *subscriptionServiceImpl) GetSchedulesByCustomer(ctx context.Context, siteID, customerUID string, page int) (*model.PortoneScheduleList, error) {
	if customerUID == "" {
		return nil, apperr.Validation("customer_uid", "is required")
	}
	if _, err := s.tenants.Resolve(ctx, siteID); err != nil {
		return nil, err
	}

	list, err := s.portoneClient.GetSchedulesByCustomer(ctx, customerUID, max(page, 1))
	if err != nil {
		return nil, fmt.Errorf("portone list schedules: %w", err)
	}
	return list, nil
}

func (s *subscriptionServiceImpl) GetScheduleByMerchantUID(ctx context.Context, siteID, merchantUID string) (*model.PortoneSchedule, error) {
	if merchantUID == "" {
		return nil, apperr.Validation("merchant_uid", "is required")
	}
	if _, err := s.tenants.Resolve(ctx, siteID); err != nil {
		return nil, err
	}

	schedule, err := s.portoneClient.GetScheduleByMerchantUID(ctx, merchantUID)
	if err != nil {
		return nil, fmt.Errorf("portone get schedule: %w", err)
	}
	return schedule, nil
}

func (s *subscriptionServiceImpl) ListSchedules(ctx context.Context, siteID string, filter repository.ScheduleFilter, page pagination.Params) (*dto.ScheduleList, error) {
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	rows, total, err := store.Schedules.List(ctx, filter, page)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list schedules", Err: err}
	}
	return &dto.ScheduleList{
		Schedules: rows,
		Total:     total,
		Page:      page.Page,
		Limit:     page.Limit,
	}, nil
}

func (s *subscriptionServiceImpl) ListSubscriptions(ctx context.Context, siteID, status string, page pagination.Params) (*dto.SubscriptionList, error) {
	switch model.BillingKeyStatus(status) {
	case "", model.BillingKeyActive, model.BillingKeyDeleted:
	default:
		return nil, apperr.Validation("status", "must be active or deleted")
	}
	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		return nil, err
	}

	subs, total, err := store.BillingKeys.ListSubscriptions(ctx, status, page)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list subscriptions", Err: err}
	}
	return &dto.SubscriptionList{
		Subscriptions: subs,
		Total:         total,
		Page:          page.Page,
		Limit:         page.Limit,
	}, nil
}

func (s *subscriptionServiceImpl) outOfSync(ctx context.Context, siteID, op, customerUID string, err error) string {
	perr := &apperr.PersistenceError{Op: op, Err: err}
	s.logger.ErrorContext(ctx, "local state out of sync",
		"site_id", siteID, "customer_uid", customerUID, "error", perr)
	return perr.Error()
}

func toBillingKey(k *model.PortoneBillingKey) *model.BillingKey {
	return &model.BillingKey{
		CustomerUID:   k.CustomerUID,
		PgProvider:    k.PgProvider,
		PgID:          k.PgID,
		CardName:      k.CardName,
		CardCode:      k.CardCode,
		CardNumber:    k.CardNumber,
		CustomerName:  k.CustomerName,
		CustomerTel:   k.CustomerTel,
		CustomerEmail: k.CustomerEmail,
	}
}
