// Package router wires the HTTP surface: middleware chain, routes and the
// JSON error handler.
package router

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/county-health/internal/handler"
	"github.com/iliyamo/county-health/internal/metrics"
	"github.com/iliyamo/county-health/internal/middleware"
)

// Deps are the pieces New assembles.  Cache and RateLimit are optional.
type Deps struct {
	API       *handler.APIHandler
	Health    *handler.HealthHandler
	Metrics   *metrics.Manager
	Cache     *middleware.ResponseCache
	RateLimit echo.MiddlewareFunc
	LogLevel  log.Lvl
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(d.LogLevel)
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger())
	e.Use(middleware.Metrics(d.Metrics))

	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes maps the endpoints.  Probes and /metrics bypass the rate
// limiter and the cache.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	var limited, cached []echo.MiddlewareFunc
	if d.RateLimit != nil {
		limited = append(limited, d.RateLimit)
	}
	cached = append(cached, limited...)
	if d.Cache != nil {
		cached = append(cached, d.Cache.Middleware())
	}

	e.POST("/county_data", d.API.CountyData, limited...)
	e.GET("/measures", d.API.Measures, cached...)
	e.GET("/tables", d.API.Tables, cached...)
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.JSON{
				"id":         v.RequestID,
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				entry["error"] = v.Error.Error()
			}
			c.Logger().Infoj(entry)
			return nil
		},
	})
}
