package handler

import (
	"github.com/labstack/echo/v4"

	"portone-payment-api/internal/dto"
	"portone-payment-api/internal/middleware"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
	"portone-payment-api/internal/service"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.paymentService.List(ctx, middleware.SiteID(c), c.QueryParam("status"), pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

// ListLocal pages through the site's own transaction rows.
func (h *PaymentHandler) ListLocal(c echo.Context) error {
	ctx := c.Request().Context()

	filter := repository.TransactionFilter{
		Status:      c.QueryParam("status"),
		CustomerUID: c.QueryParam("customer_uid"),
	}
	result, err := h.paymentService.ListLocal(ctx, middleware.SiteID(c), filter, pagination.FromEcho(c))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *PaymentHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.paymentService.Get(ctx, middleware.SiteID(c), c.Param("impUID"))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *PaymentHandler) FindByMerchantUID(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.paymentService.FindByMerchantUID(ctx, middleware.SiteID(c), c.Param("merchantUID"))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *PaymentHandler) Prepare(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PrepareRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.Prepare(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "payment prepared")
}

func (h *PaymentHandler) GetPrepared(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.paymentService.GetPrepared(ctx, middleware.SiteID(c), c.Param("merchantUID"))
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *PaymentHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.Cancel(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "payment cancelled")
}

func (h *PaymentHandler) IssueVirtualAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VirtualAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.IssueVirtualAccount(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return successWithMessage(c, result, "virtual account issued")
}

func (h *PaymentHandler) ExtendVirtualAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ExtendVirtualAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.ExtendVirtualAccount(ctx, middleware.SiteID(c), c.Param("impUID"), &req)
	if err != nil {
		return err
	}
	return success(c, result)
}

func (h *PaymentHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VerifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.Verify(ctx, middleware.SiteID(c), &req)
	if err != nil {
		return err
	}
	return success(c, result)
}
