package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"portone-payment-api/internal/handler"
	authmw "portone-payment-api/internal/middleware"
	"portone-payment-api/internal/service"
	"portone-payment-api/internal/tenant"
)

type Server struct {
	echo                *echo.Echo
	paymentHandler      *handler.PaymentHandler
	subscriptionHandler *handler.SubscriptionHandler
	webhookHandler      *handler.WebhookHandler
	tenants             tenant.Resolver
	adminKey            string
}

type Services struct {
	Payments      service.PaymentService
	Subscriptions service.SubscriptionService
	Webhooks      service.WebhookService
}

func NewServer(services Services, tenants tenant.Resolver, adminKey string, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:                e,
		paymentHandler:      handler.NewPaymentHandler(services.Payments),
		subscriptionHandler: handler.NewSubscriptionHandler(services.Subscriptions),
		webhookHandler:      handler.NewWebhookHandler(services.Webhooks),
		tenants:             tenants,
		adminKey:            adminKey,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- payments --------
	payments := api.Group("/payments", authmw.AuthMiddleware(s.tenants))
	payments.GET("", s.paymentHandler.List)
	payments.GET("/local", s.paymentHandler.ListLocal)
	payments.GET("/find/:merchantUID", s.paymentHandler.FindByMerchantUID)
	payments.GET("/prepare/:merchantUID", s.paymentHandler.GetPrepared)
	payments.POST("/prepare", s.paymentHandler.Prepare)
	payments.POST("/cancel", s.paymentHandler.Cancel)
	payments.POST("/vbank", s.paymentHandler.IssueVirtualAccount)
	payments.PUT("/vbank/:impUID", s.paymentHandler.ExtendVirtualAccount)
	payments.POST("/verify", s.paymentHandler.Verify)
	payments.GET("/:impUID", s.paymentHandler.Get)

	// -------- subscriptions --------
	subs := api.Group("/subscriptions", authmw.AuthMiddleware(s.tenants))
	subs.GET("", s.subscriptionHandler.List)
	subs.GET("/billing-key", s.subscriptionHandler.ListBillingKeys)
	subs.POST("/billing-key", s.subscriptionHandler.IssueBillingKey)
	subs.GET("/billing-key/:customerUID", s.subscriptionHandler.GetBillingKey)
	subs.DELETE("/billing-key/:customerUID", s.subscriptionHandler.DeleteBillingKey)
	subs.POST("/pay", s.subscriptionHandler.Pay)
	subs.GET("/schedule", s.subscriptionHandler.ListSchedules)
	subs.POST("/schedule", s.subscriptionHandler.Schedule)
	subs.GET("/schedule/:id", s.subscriptionHandler.GetSchedule)
	subs.DELETE("/schedule/:customerUID", s.subscriptionHandler.Unschedule)

	// -------- webhooks --------
	webhooks := api.Group("/webhooks")
	webhooks.POST("/portone/:siteID", s.webhookHandler.PortoneWebhook)

	adminOnly := authmw.AdminMiddleware(s.adminKey)
	webhooks.GET("/logs", s.webhookHandler.ListLogs, adminOnly)
	webhooks.POST("/reconcile/:siteID/:impUID", s.webhookHandler.Reconcile, adminOnly)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
