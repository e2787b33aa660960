package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/client"
	"portone-payment-api/internal/config"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

const testSite = "site_a"

// fakePortone is an in-memory PortOne V1 API.
type fakePortone struct {
	server *httptest.Server

	mu       sync.Mutex
	payments map[string]map[string]any
	bodies   map[string]map[string]any
	seq      int
}

func newFakePortone(t *testing.T) *fakePortone {
	t.Helper()
	f := &fakePortone{
		payments: map[string]map[string]any{},
		bodies:   map[string]map[string]any{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePortone) client() client.PortoneClient {
	return client.NewPortoneClient(&config.Portone{
		BaseApiURL: f.server.URL,
		APIKey:     "key",
		APISecret:  "secret",
		Timeout:    2 * time.Second,
	})
}

func (f *fakePortone) setPayment(p map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p["imp_uid"].(string)] = p
}

func (f *fakePortone) body(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func (f *fakePortone) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.bodies[r.URL.Path] = body
	path := r.URL.Path

	if path == "/users/getToken" {
		reply(w, 0, "", map[string]any{"access_token": "tok", "expired_at": time.Now().Add(time.Hour).Unix()})
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		reply(w, -1, "unauthorized", nil)
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/payments/"):
		p, ok := f.payments[strings.TrimPrefix(path, "/payments/")]
		if !ok {
			reply(w, 1, "존재하지 않는 결제정보입니다.", nil)
			return
		}
		reply(w, 0, "", p)

	case path == "/payments/prepare":
		reply(w, 0, "", map[string]any{"merchant_uid": body["merchant_uid"], "amount": body["amount"]})

	case path == "/payments/cancel":
		for _, p := range f.payments {
			if p["imp_uid"] == body["imp_uid"] || p["merchant_uid"] == body["merchant_uid"] {
				p["status"] = "cancelled"
				p["cancel_amount"] = p["amount"]
				p["cancel_reason"] = body["reason"]
				p["cancelled_at"] = time.Now().Unix()
				reply(w, 0, "", p)
				return
			}
		}
		reply(w, 1, "취소할 결제건이 존재하지 않습니다.", nil)

	case path == "/vbanks":
		p := f.newPayment(body, "ready", "vbank")
		p["vbank_code"] = body["vbank_code"]
		p["vbank_holder"] = body["vbank_holder"]
		p["vbank_num"] = "110-123-456789"
		p["vbank_date"] = body["vbank_due"]
		reply(w, 0, "", p)

	case strings.HasPrefix(path, "/subscribe/customers/"):
		reply(w, 0, "", map[string]any{
			"customer_uid": strings.TrimPrefix(path, "/subscribe/customers/"),
			"card_name":    "신한카드",
			"card_number":  "4111-****-****-1111",
		})

	case path == "/subscribe/payments/again":
		p := f.newPayment(body, "paid", "card")
		p["customer_uid"] = body["customer_uid"]
		p["paid_at"] = time.Now().Unix()
		reply(w, 0, "", p)

	case path == "/subscribe/payments/schedule":
		var out []map[string]any
		items, _ := body["schedules"].([]any)
		for _, it := range items {
			item := it.(map[string]any)
			out = append(out, map[string]any{
				"customer_uid":    body["customer_uid"],
				"merchant_uid":    item["merchant_uid"],
				"schedule_at":     item["schedule_at"],
				"amount":          item["amount"],
				"schedule_status": "scheduled",
			})
		}
		reply(w, 0, "", out)

	case path == "/subscribe/payments/unschedule":
		var out []map[string]any
		uids, _ := body["merchant_uid"].([]any)
		for _, uid := range uids {
			out = append(out, map[string]any{"customer_uid": body["customer_uid"], "merchant_uid": uid, "schedule_status": "revoked"})
		}
		reply(w, 0, "", out)

	default:
		reply(w, 1, "not found", nil)
	}
}

func (f *fakePortone) newPayment(body map[string]any, status, method string) map[string]any {
	f.seq++
	p := map[string]any{
		"imp_uid":      fmt.Sprintf("imp_%d", 1000+f.seq),
		"merchant_uid": body["merchant_uid"],
		"amount":       body["amount"],
		"name":         body["name"],
		"status":       status,
		"pay_method":   method,
	}
	f.payments[p["imp_uid"].(string)] = p
	return p
}

func reply(w http.ResponseWriter, code int, message string, response any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "response": response})
}

type fakeResolver struct {
	stores map[string]*tenant.Store
}

func (r *fakeResolver) Resolve(ctx context.Context, siteID string) (*tenant.Store, error) {
	store, ok := r.stores[siteID]
	if !ok {
		return nil, &apperr.TenantNotFoundError{SiteID: siteID}
	}
	return store, nil
}

func (r *fakeResolver) ResolveAPIKey(ctx context.Context, rawKey string) (string, error) {
	return "", &apperr.TenantNotFoundError{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	gateway    *fakePortone
	store      *tenant.Store
	platformDB *gorm.DB
	events     *recordingPublisher
	webhooks   WebhookService
	payments   PaymentService
	subs       SubscriptionService
}

func openTestDB(t *testing.T, name string, models ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gateway:    newFakePortone(t),
		platformDB: openTestDB(t, "platform.db", model.PlatformModels()...),
		events:     &recordingPublisher{},
	}
	h.store = tenant.NewStore(testSite, openTestDB(t, "tenant.db", model.TenantModels()...))

	resolver := &fakeResolver{stores: map[string]*tenant.Store{testSite: h.store}}
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	pc := h.gateway.client()

	h.webhooks = NewWebhookService(pc, resolver, repository.NewWebhookLogRepository(h.platformDB), h.events, discard)
	h.payments = NewPaymentService(pc, resolver, h.events, discard)
	h.subs = NewSubscriptionService(pc, resolver, h.events, discard)
	return h
}

func (h *harness) logStatuses(t *testing.T) []model.WebhookLogStatus {
	t.Helper()
	var logs []model.WebhookLog
	if err := h.platformDB.Order("created_at ASC").Find(&logs).Error; err != nil {
		t.Fatal(err)
	}
	out := make([]model.WebhookLogStatus, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Status)
	}
	return out
}

func (h *harness) transaction(t *testing.T, merchantUID string) *model.Transaction {
	t.Helper()
	row, err := h.store.Transactions.FindByMerchantUID(context.Background(), merchantUID)
	if err != nil {
		t.Fatalf("find %s: %v", merchantUID, err)
	}
	return row
}

func notify(impUID, status string) *Notification {
	raw, _ := json.Marshal(map[string]string{"imp_uid": impUID, "status": status})
	return &Notification{ImpUID: impUID, Status: status, Raw: raw}
}
