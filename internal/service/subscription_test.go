package service

import (
	"context"
	"testing"
	"time"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
)

func issueKey(t *testing.T, h *harness, customerUID string) {
	t.Helper()
	view, err := h.subs.IssueBillingKey(context.Background(), testSite, &dto.IssueBillingKeyRequest{
		CustomerUID: customerUID,
		CardNumber:  "4111111111111111",
		Expiry:      "2030-12",
		Birth:       "900101",
	})
	if err != nil {
		t.Fatalf("IssueBillingKey: %v", err)
	}
	if view.SyncError != "" {
		t.Fatalf("sync error: %s", view.SyncError)
	}
}

func TestIssueBillingKeyStoresMaskedCard(t *testing.T) {
	h := newHarness(t)
	issueKey(t, h, "cust-1")

	key, err := h.store.BillingKeys.Get(context.Background(), "cust-1")
	if err != nil {
		t.Fatal(err)
	}
	if key.Status != model.BillingKeyActive || key.CardNumber != "4111-****-****-1111" {
		t.Errorf("key = %+v", key)
	}
}

func TestDeletedKeyCannotBeCharged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issueKey(t, h, "cust-1")
	if err := h.store.BillingKeys.SoftDelete(ctx, "cust-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	_, err := h.subs.PayWithBillingKey(ctx, testSite, &dto.PayWithBillingKeyRequest{
		CustomerUID: "cust-1", MerchantUID: "SUB-1", Amount: 5000, Name: "plan",
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if h.gateway.body("/subscribe/payments/again") != nil {
		t.Errorf("gateway charged a deleted key")
	}
}

func TestScheduledPaymentMarkedPaidByWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issueKey(t, h, "cust-1")

	res, err := h.subs.Schedule(ctx, testSite, &dto.ScheduleRequest{
		CustomerUID: "cust-1",
		Schedules: []*dto.ScheduleItem{
			{MerchantUID: "SUB-1", ScheduleAt: time.Now().Add(time.Hour).Unix(), Amount: 5000, Name: "plan"},
			{MerchantUID: "SUB-2", ScheduleAt: time.Now().Add(48 * time.Hour).Unix(), Amount: 5000, Name: "plan"},
		},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SyncError != "" || len(res.Schedules) != 2 {
		t.Fatalf("result = %+v", res)
	}

	// The gateway runs the schedule and notifies.
	h.gateway.setPayment(map[string]any{
		"imp_uid": "imp_s1", "merchant_uid": "SUB-1", "customer_uid": "cust-1", "amount": 5000, "status": "paid",
	})
	if _, err := h.webhooks.HandleNotification(ctx, testSite, notify("imp_s1", "paid")); err != nil {
		t.Fatal(err)
	}

	list, err := h.subs.ListSchedules(ctx, testSite, repository.ScheduleFilter{CustomerUID: "cust-1"}, pagination.New(1, 20))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]model.ScheduleStatus{}
	for _, s := range list.Schedules {
		got[s.MerchantUID] = s.Status
	}
	if got["SUB-1"] != model.SchedulePaid || got["SUB-2"] != model.ScheduleScheduled {
		t.Errorf("schedules = %v", got)
	}

	subs, err := h.subs.ListSubscriptions(ctx, testSite, "active", pagination.New(1, 20))
	if err != nil {
		t.Fatal(err)
	}
	if subs.Total != 1 || subs.Subscriptions[0].PaymentCount != 1 || subs.Subscriptions[0].TotalPaid.IntPart() != 5000 {
		t.Errorf("subscriptions = %+v", subs.Subscriptions)
	}
}

func TestScheduleRejectsPastTime(t *testing.T) {
	h := newHarness(t)
	_, err := h.subs.Schedule(context.Background(), testSite, &dto.ScheduleRequest{
		CustomerUID: "cust-1",
		Schedules: []*dto.ScheduleItem{
			{MerchantUID: "SUB-1", ScheduleAt: time.Now().Add(-time.Minute).Unix(), Amount: 5000, Name: "plan"},
		},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestUnscheduleCancelsLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.subs.Schedule(ctx, testSite, &dto.ScheduleRequest{
		CustomerUID: "cust-1",
		Schedules: []*dto.ScheduleItem{
			{MerchantUID: "SUB-1", ScheduleAt: time.Now().Add(time.Hour).Unix(), Amount: 5000, Name: "plan"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.subs.Unschedule(ctx, testSite, "cust-1", &dto.UnscheduleRequest{MerchantUIDs: dto.StringList{"SUB-1"}})
	if err != nil {
		t.Fatalf("Unschedule: %v", err)
	}
	if res.SyncError != "" {
		t.Fatalf("sync error: %s", res.SyncError)
	}
	if len(res.Schedules) != 1 || res.Schedules[0].MerchantUID != "SUB-1" {
		t.Errorf("revoked = %+v", res.Schedules)
	}
	row, err := h.store.Schedules.FindByMerchantUID(ctx, "SUB-1")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != model.ScheduleCancelled || row.CancelledAt == nil {
		t.Errorf("row = %+v", row)
	}
}

func TestListSubscriptionsRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	_, err := h.subs.ListSubscriptions(context.Background(), testSite, "paused", pagination.New(1, 20))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestListBillingKeysCapsCustomers(t *testing.T) {
	h := newHarness(t)
	uids := make([]string, pagination.MaxLimit+1)
	for i := range uids {
		uids[i] = "c"
	}
	_, err := h.subs.ListBillingKeys(context.Background(), testSite, uids, pagination.New(1, 20))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}
