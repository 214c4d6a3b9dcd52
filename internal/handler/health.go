package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is implemented by the store handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes from load balancers and monitoring.
type HealthHandler struct {
	Store Pinger
}

// Health pings the store with a short timeout.  It returns 200 with
// {"status":"ok"} when the store answers and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		c.Logger().Warnf("healthz: store ping failed: %v", err)
		return errorJSON(c, http.StatusServiceUnavailable, codeUnavailable, "store unreachable")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
