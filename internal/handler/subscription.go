package handler

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/middleware"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

func (h *SubscriptionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.subscriptionService.ListSubscriptions(ctx, middleware.SiteID(c), c.QueryParam("status"), pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *SubscriptionHandler) IssueBillingKey(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.IssueBillingKeyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.subscriptionService.IssueBillingKey(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "billing key issued")
}

func (h *SubscriptionHandler) GetBillingKey(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.subscriptionService.GetBillingKey(ctx, middleware.SiteID(c), c.Param("customerUID"))
	if err != nil {
		return err
	}
	return success(c, result)
}

// ListBillingKeys accepts ?customer_uid=a&customer_uid=b or a comma list.
func (h *SubscriptionHandler) ListBillingKeys(c echo.Context) error {
	ctx := c.Request().Context()

	var customerUIDs []string
	for _, v := range c.QueryParams()["customer_uid"] {
		for _, uid := range strings.Split(v, ",") {
			if uid = strings.TrimSpace(uid); uid != "" {
				customerUIDs = append(customerUIDs, uid)
			}
		}
	}

	result, err := h.subscriptionService.ListBillingKeys(ctx, middleware.SiteID(c), customerUIDs, pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *SubscriptionHandler) DeleteBillingKey(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.subscriptionService.DeleteBillingKey(ctx, middleware.SiteID(c), c.Param("customerUID"))
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "billing key deleted")
}

func (h *SubscriptionHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PayWithBillingKeyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.subscriptionService.PayWithBillingKey(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *SubscriptionHandler) Schedule(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ScheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.subscriptionService.Schedule(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "payments scheduled")
}

func (h *SubscriptionHandler) Unschedule(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UnscheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.subscriptionService.Unschedule(ctx, middleware.SiteID(c), c.Param("customerUID"), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "schedules cancelled")
}

// ListSchedules pages through the site's stored schedules.
func (h *SubscriptionHandler) ListSchedules(c echo.Context) error {
	ctx := c.Request().Context()

	filter := repository.ScheduleFilter{
		Status:      c.QueryParam("status"),
		CustomerUID: c.QueryParam("customer_uid"),
	}
	result, err := h.subscriptionService.ListSchedules(ctx, middleware.SiteID(c), filter, pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

// GetSchedule looks :id up as a customer uid or a merchant uid depending on
// ?by, customer by default.
func (h *SubscriptionHandler) GetSchedule(c echo.Context) error {
	ctx := c.Request().Context()
	siteID := middleware.SiteID(c)
	id := c.Param("id")

	switch c.QueryParam("by") {
	case "", "customer":
		page, _ := strconv.Atoi(c.QueryParam("page"))
		result, err := h.subscriptionService.GetSchedulesByCustomer(ctx, siteID, id, page)
		if err != nil {
			return err
		}
		return success(c, result)
	case "merchant":
		result, err := h.subscriptionService.GetScheduleByMerchantUID(ctx, siteID, id)
		if err != nil {
			return err
		}
		return success(c, result)
	}
	return apperr.Validation("by", "must be customer or merchant")
}
