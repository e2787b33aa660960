package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
)

func seedSchedules(t *testing.T, repo ScheduleRepository, customerUID string, n int) {
	t.Helper()
	at := time.Now().Add(24 * time.Hour)
	batch := make([]*model.ScheduledPayment, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, &model.ScheduledPayment{
			CustomerUID: customerUID,
			MerchantUID: fmt.Sprintf("%s-SCH-%d", customerUID, i),
			Amount:      5000,
			ScheduleAt:  at.Add(time.Duration(i) * time.Hour),
			Status:      model.ScheduleScheduled,
		})
	}
	if err := repo.UpsertMany(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
}

func TestScheduleListRespectsLimit(t *testing.T) {
	repo := NewScheduleRepository(setupTestDB(t))
	seedSchedules(t, repo, "cust-1", 120)
	seedSchedules(t, repo, "cust-2", 30)
	ctx := context.Background()

	rows, total, err := repo.List(ctx, ScheduleFilter{}, pagination.New(1, 1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) > pagination.MaxLimit {
		t.Errorf("len = %d exceeds cap", len(rows))
	}
	if total != 150 {
		t.Errorf("total = %d, want unfiltered 150", total)
	}

	rows, total, err = repo.List(ctx, ScheduleFilter{CustomerUID: "cust-2"}, pagination.New(1, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 20 || total != 30 {
		t.Errorf("filtered len=%d total=%d", len(rows), total)
	}
}

func TestScheduleMarkOutcome(t *testing.T) {
	repo := NewScheduleRepository(setupTestDB(t))
	seedSchedules(t, repo, "cust-1", 2)
	ctx := context.Background()

	n, err := repo.MarkOutcome(ctx, ScheduleOutcome{
		CustomerUID: "cust-1",
		MerchantUID: "cust-1-SCH-0",
		Status:      model.SchedulePaid,
		ImpUID:      "imp_1",
		At:          time.Now(),
	})
	if err != nil || n != 1 {
		t.Fatalf("MarkOutcome() = %d, %v", n, err)
	}

	// A late failure notice cannot undo the charge.
	n, err = repo.MarkOutcome(ctx, ScheduleOutcome{MerchantUID: "cust-1-SCH-0", Status: model.ScheduleFailed, FailReason: "late"})
	if err != nil || n != 0 {
		t.Fatalf("late failure affected %d rows, err %v", n, err)
	}

	got, _ := repo.FindByMerchantUID(ctx, "cust-1-SCH-0")
	if got.Status != model.SchedulePaid || got.ImpUID == nil || *got.ImpUID != "imp_1" || got.PaidAt == nil {
		t.Errorf("schedule = %+v", got)
	}

	if n, _ := repo.MarkOutcome(ctx, ScheduleOutcome{MerchantUID: "unknown", Status: model.SchedulePaid}); n != 0 {
		t.Errorf("unknown merchant_uid matched %d rows", n)
	}
}

func TestScheduleCancel(t *testing.T) {
	repo := NewScheduleRepository(setupTestDB(t))
	seedSchedules(t, repo, "cust-1", 3)
	ctx := context.Background()

	if err := repo.Cancel(ctx, "cust-1", []string{"cust-1-SCH-0", "cust-1-SCH-2"}, time.Now()); err != nil {
		t.Fatal(err)
	}

	_, total, _ := repo.List(ctx, ScheduleFilter{Status: string(model.ScheduleCancelled)}, pagination.New(1, 10))
	if total != 2 {
		t.Errorf("cancelled = %d, want 2", total)
	}
}

func TestScheduleReRegisterKeepsOutcome(t *testing.T) {
	repo := NewScheduleRepository(setupTestDB(t))
	seedSchedules(t, repo, "cust-1", 3)
	ctx := context.Background()

	if _, err := repo.MarkOutcome(ctx, ScheduleOutcome{MerchantUID: "cust-1-SCH-0", Status: model.SchedulePaid, ImpUID: "imp_1", At: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.MarkOutcome(ctx, ScheduleOutcome{MerchantUID: "cust-1-SCH-1", Status: model.ScheduleFailed, FailReason: "declined"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Cancel(ctx, "cust-1", []string{"cust-1-SCH-2"}, time.Now()); err != nil {
		t.Fatal(err)
	}

	seedSchedules(t, repo, "cust-1", 3)

	want := map[string]model.ScheduleStatus{
		"cust-1-SCH-0": model.SchedulePaid,
		"cust-1-SCH-1": model.ScheduleFailed,
		"cust-1-SCH-2": model.ScheduleScheduled,
	}
	for uid, status := range want {
		got, err := repo.FindByMerchantUID(ctx, uid)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != status {
			t.Errorf("%s status = %q, want %q", uid, got.Status, status)
		}
	}
}
