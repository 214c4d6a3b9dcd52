package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Measures handles GET /measures and returns {"measures": [...]}, the
// distinct measure names of the rankings table in ascending order.  Every
// value is accepted as measure_name by POST /county_data.
func (h *APIHandler) Measures(c echo.Context) error {
	measures, err := h.Counties.Measures(c.Request().Context())
	if err != nil {
		return internalError(c, "measures", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"measures": measures})
}

// Tables handles GET /tables.  The response maps each table to its ordered
// column list and column types, read from the store catalog on every call.
func (h *APIHandler) Tables(c echo.Context) error {
	tables, err := h.Schema.Tables(c.Request().Context())
	if err != nil {
		return internalError(c, "tables", err)
	}
	return c.JSON(http.StatusOK, tables)
}
