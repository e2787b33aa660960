package handler

import (
	"io"

	"github.com/labstack/echo/v4"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/service"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// PortoneWebhook receives a PortOne notification for the site in the path.
// Once the gateway record is verified the notification is acknowledged even
// if the local write failed, so PortOne stops retrying.
func (h *WebhookHandler) PortoneWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	var n *service.Notification
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		n = service.MalformedNotification(body, apperr.Validation("body", "unreadable notification body"))
	} else if n, err = service.ParseNotification(c.Request().Header.Get(echo.HeaderContentType), body); err != nil {
		n = service.MalformedNotification(body, err)
	}

	outcome, err := h.webhookService.HandleNotification(ctx, c.Param("siteID"), n)
	if err != nil {
		return err
	}
	return ack(c, n.ImpUID, outcome)
}

// Reconcile re-runs reconciliation for one payment on operator request.
func (h *WebhookHandler) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()

	impUID := c.Param("impUID")
	outcome, err := h.webhookService.Reconcile(ctx, c.Param("siteID"), impUID)
	if err != nil {
		return err
	}
	return ack(c, impUID, outcome)
}

func (h *WebhookHandler) ListLogs(c echo.Context) error {
	ctx := c.Request().Context()

	filter := repository.WebhookLogFilter{
		SiteID: c.QueryParam("site_id"),
		Source: c.QueryParam("source"),
		Status: c.QueryParam("status"),
		ImpUID: c.QueryParam("imp_uid"),
	}
	result, err := h.webhookService.ListLogs(ctx, filter, pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

func ack(c echo.Context, impUID string, outcome *service.Outcome) error {
	resp := &dto.WebhookAck{
		Action: string(outcome.Action),
		ImpUID: impUID,
	}
	if outcome.Payment != nil {
		resp.MerchantUID = outcome.Payment.MerchantUID
		resp.Status = outcome.Payment.Status
	}
	if outcome.PersistErr != nil {
		resp.SyncError = outcome.PersistErr.Error()
		return successWithMessage(c, resp, "accepted; local state out of sync")
	}
	return success(c, resp)
}
