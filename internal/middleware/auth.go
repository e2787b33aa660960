package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/tenant"
)

const (
	APIKeyHeader = "X-API-Key"
	siteIDKey    = "site_id"
)

// AuthMiddleware binds the request to the site owning the X-API-Key header.
func AuthMiddleware(tenants tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(APIKeyHeader)
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+APIKeyHeader+" header")
			}

			siteID, err := tenants.ResolveAPIKey(c.Request().Context(), key)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindTenantNotFound {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
				}
				return err
			}

			c.Set(siteIDKey, siteID)
			return next(c)
		}
	}
}

// AdminMiddleware guards platform routes with the shared admin key. An empty
// configured key disables those routes.
func AdminMiddleware(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(APIKeyHeader)
			if adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
			}
			return next(c)
		}
	}
}

// SiteID returns the site bound by AuthMiddleware.
func SiteID(c echo.Context) string {
	siteID, _ := c.Get(siteIDKey).(string)
	return siteID
}
