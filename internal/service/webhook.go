package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/client"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/event"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/tenant"
)

const (
	SourcePortone = "portone"
	SourceManual  = "manual"
)

// Notification is what an inbound webhook claims. Only ImpUID is trusted, and
// only as the key to fetch the gateway's own record.
type Notification struct {
	ImpUID      string
	MerchantUID string
	Status      string
	Raw         datatypes.JSON
	// Err is set when the body could not be read or parsed. The notification
	// is still logged, as rejected.
	Err error
}

// MalformedNotification wraps a body that could not be parsed. The raw bytes
// are kept as a JSON string so the log entry shows what arrived.
func MalformedNotification(body []byte, err error) *Notification {
	raw, mErr := json.Marshal(string(body))
	if mErr != nil {
		raw = []byte(`""`)
	}
	return &Notification{Raw: raw, Err: err}
}

// Outcome is the result of one reconciliation. PersistErr is set when the
// verified gateway state could not be written locally; the notification is
// still considered handled.
type Outcome struct {
	Action      Action
	Payment     *model.PortonePayment
	Transaction *model.Transaction
	PersistErr  error
}

type WebhookService interface {
	HandleNotification(ctx context.Context, siteID string, n *Notification) (*Outcome, error)
	Reconcile(ctx context.Context, siteID, impUID string) (*Outcome, error)
	ListLogs(ctx context.Context, filter repository.WebhookLogFilter, page pagination.Params) (*dto.WebhookLogList, error)
}

type webhookServiceImpl struct {
	portoneClient client.PortoneClient
	tenants       tenant.Resolver
	logRepo       repository.WebhookLogRepository
	reconciler    *reconciler
	logger        *slog.Logger
}

func NewWebhookService(
	portoneClient client.PortoneClient,
	tenants tenant.Resolver,
	logRepo repository.WebhookLogRepository,
	publisher event.Publisher,
	logger *slog.Logger,
) WebhookService {
	return &webhookServiceImpl{
		portoneClient: portoneClient,
		tenants:       tenants,
		logRepo:       logRepo,
		reconciler:    &reconciler{publisher: publisher, logger: logger, now: time.Now},
		logger:        logger,
	}
}

func (s *webhookServiceImpl) HandleNotification(ctx context.Context, siteID string, n *Notification) (*Outcome, error) {
	return s.process(ctx, SourcePortone, siteID, n)
}

// Reconcile re-runs reconciliation for one payment out of band.
func (s *webhookServiceImpl) Reconcile(ctx context.Context, siteID, impUID string) (*Outcome, error) {
	raw, _ := json.Marshal(map[string]string{"imp_uid": impUID})
	return s.process(ctx, SourceManual, siteID, &Notification{ImpUID: impUID, Raw: raw})
}

func (s *webhookServiceImpl) ListLogs(ctx context.Context, filter repository.WebhookLogFilter, page pagination.Params) (*dto.WebhookLogList, error) {
	logs, err := s.logRepo.List(ctx, filter, page)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list webhook logs", Err: err}
	}
	return &dto.WebhookLogList{
		Logs:  logs,
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

// process writes exactly one webhook log entry whatever happens.
func (s *webhookServiceImpl) process(ctx context.Context, source, siteID string, n *Notification) (*Outcome, error) {
	entry := &model.WebhookLog{
		SiteID:      siteID,
		Source:      source,
		ImpUID:      n.ImpUID,
		MerchantUID: n.MerchantUID,
		Payload:     n.Raw,
	}
	logger := s.logger.With("source", source, "site_id", siteID, "imp_uid", n.ImpUID)

	if n.Err != nil {
		logger.WarnContext(ctx, "webhook rejected", "error", n.Err)
		s.record(ctx, entry, model.WebhookRejected, n.Err.Error())
		return nil, n.Err
	}
	if n.ImpUID == "" {
		err := apperr.Validation("imp_uid", "is required")
		logger.WarnContext(ctx, "webhook rejected", "error", err)
		s.record(ctx, entry, model.WebhookRejected, err.Error())
		return nil, err
	}

	store, err := s.tenants.Resolve(ctx, siteID)
	if err != nil {
		status := model.WebhookError
		if apperr.KindOf(err) == apperr.KindTenantNotFound {
			status = model.WebhookRejected
		}
		logger.WarnContext(ctx, "resolve tenant", "error", err)
		s.record(ctx, entry, status, err.Error())
		return nil, err
	}

	payment, err := s.portoneClient.GetPayment(ctx, n.ImpUID)
	if err != nil {
		logger.ErrorContext(ctx, "fetch payment from gateway", "error", err)
		s.record(ctx, entry, model.WebhookError, err.Error())
		return nil, fmt.Errorf("get payment: %w", err)
	}
	entry.MerchantUID = payment.MerchantUID

	res, err := s.reconciler.apply(ctx, store, payment, n.Status, true)
	if err != nil {
		var persistErr *apperr.PersistenceError
		if errors.As(err, &persistErr) {
			res = &applyResult{PersistErr: err}
		} else {
			logger.WarnContext(ctx, "webhook rejected", "status", payment.Status, "error", err)
			s.record(ctx, entry, model.WebhookRejected, err.Error())
			return nil, err
		}
	}

	outcome := &Outcome{
		Action:      res.Action,
		Payment:     payment,
		Transaction: res.Transaction,
		PersistErr:  res.PersistErr,
	}

	switch {
	case res.PersistErr != nil:
		logger.ErrorContext(ctx, "local state out of sync",
			"merchant_uid", payment.MerchantUID, "status", payment.Status, "error", res.PersistErr)
		s.record(ctx, entry, model.WebhookPersistFailed, res.PersistErr.Error())
	case res.Action == ActionUnrecognized:
		s.record(ctx, entry, model.WebhookIgnored, "unrecognized status "+payment.Status)
	default:
		logger.InfoContext(ctx, "payment reconciled", "action", res.Action, "merchant_uid", payment.MerchantUID)
		s.record(ctx, entry, model.WebhookProcessed, string(res.Action))
	}
	return outcome, nil
}

func (s *webhookServiceImpl) record(ctx context.Context, entry *model.WebhookLog, status model.WebhookLogStatus, message string) {
	entry.Status = status
	entry.Message = truncate(message, 1024)
	if len(entry.Payload) == 0 {
		entry.Payload = datatypes.JSON("{}")
	}
	if err := s.logRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.ErrorContext(ctx, "write webhook log",
			"site_id", entry.SiteID, "imp_uid", entry.ImpUID, "status", status, "error", err)
	}
}

// ParseNotification accepts a JSON or form-encoded webhook body. Unknown
// content types are tried as JSON first.
func ParseNotification(contentType string, body []byte) (*Notification, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		return parseForm(body)
	case strings.Contains(ct, "json"):
		return parseJSON(body)
	}
	if n, err := parseJSON(body); err == nil {
		return n, nil
	}
	return parseForm(body)
}

func parseJSON(body []byte) (*Notification, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, apperr.Validation("body", "malformed JSON notification: %v", err)
	}
	return &Notification{
		ImpUID:      stringField(fields["imp_uid"]),
		MerchantUID: stringField(fields["merchant_uid"]),
		Status:      stringField(fields["status"]),
		Raw:         datatypes.JSON(body),
	}, nil
}

func parseForm(body []byte) (*Notification, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperr.Validation("body", "malformed form notification: %v", err)
	}
	flat := make(map[string]string, len(values))
	for k := range values {
		flat[k] = values.Get(k)
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("marshal form payload: %w", err)
	}
	return &Notification{
		ImpUID:      values.Get("imp_uid"),
		MerchantUID: values.Get("merchant_uid"),
		Status:      values.Get("status"),
		Raw:         raw,
	}, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
