package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"portone-payment-api/internal/apperr"
)

type successResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type errorBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	GatewayCode *int   `json:"gateway_code,omitempty"`
}

type errorResponse struct {
	Status string    `json:"status"`
	Error  errorBody `json:"error"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, successResponse{Status: "success", Data: data})
}

func successWithMessage(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, successResponse{Status: "success", Data: data, Message: message})
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("body", "invalid request body")
	}
	return nil
}

// ErrorHandler renders every error returned by a handler or middleware as the
// error envelope.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := toErrorBody(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method, "path", c.Path(), "status", status, "error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, errorResponse{Status: "error", Error: body})
		}
		if writeErr != nil {
			logger.ErrorContext(c.Request().Context(), "write error response", "error", writeErr)
		}
	}
}

func toErrorBody(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		return he.Code, errorBody{Code: statusCode(he.Code), Message: msg}
	}

	kind := apperr.KindOf(err)
	body := errorBody{Code: strings.ToUpper(string(kind)), Message: err.Error()}
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, body
	case apperr.KindTenantNotFound:
		return http.StatusNotFound, body
	case apperr.KindGatewayRejection:
		var rej *apperr.GatewayRejection
		errors.As(err, &rej)
		body.Message = rej.Message
		body.GatewayCode = &rej.Code
		return http.StatusBadRequest, body
	case apperr.KindTransport, apperr.KindAuthentication:
		return http.StatusBadGateway, body
	case apperr.KindPersistence:
		body.Message = "local storage unavailable"
		return http.StatusInternalServerError, body
	}
	return http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"}
}

func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
