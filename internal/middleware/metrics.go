package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/county-health/internal/metrics"
)

// Metrics records request count and latency per route template.
func Metrics(m *metrics.Manager) echo.MiddlewareFunc {
	if m == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				// The error handler has not run yet, so take the status from
				// the error itself.
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			m.ObserveHTTP(c.Request().Method, c.Path(), status, time.Since(start))
			return err
		}
	}
}
