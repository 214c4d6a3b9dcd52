// Package handler exposes the HTTP handlers of the county health API.
// Responses are JSON; every error body uses the envelope written by
// errorJSON.

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/county-health/internal/metrics"
	"github.com/iliyamo/county-health/internal/repository"
)

var zipPattern = regexp.MustCompile(`^[0-9]{5}$`)

// APIHandler aggregates the repositories behind the public endpoints.
type APIHandler struct {
	Counties *repository.CountyRepo // rankings and zip lookups
	Schema   *repository.SchemaRepo // live table metadata
	Metrics  *metrics.Manager       // optional, may be nil
}

// CountyData handles POST /county_data.  The body must be a JSON object with
// string fields zip and measure_name.  A body with coffee set to "teapot" is
// answered with 418 before any other validation.
func (h *APIHandler) CountyData(c echo.Context) error {
	ctx := c.Request().Context()

	var body map[string]any
	decodeErr := json.NewDecoder(c.Request().Body).Decode(&body)

	// The teapot answer does not depend on the Content-Type header.
	if coffee, _ := body["coffee"].(string); coffee == "teapot" {
		c.Logger().Infof("county_data: teapot")
		return h.reject(c, http.StatusTeapot, codeTeapot, "I'm a teapot")
	}

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(strings.ToLower(ct), echo.MIMEApplicationJSON) {
		return h.reject(c, http.StatusBadRequest, codeBadRequest, "Content-Type must be application/json")
	}
	if decodeErr != nil || body == nil {
		return h.reject(c, http.StatusBadRequest, codeBadRequest, "body must be a JSON object")
	}

	zip, msg := stringField(body, "zip")
	if msg != "" {
		return h.reject(c, http.StatusBadRequest, codeBadRequest, msg)
	}
	measure, msg := stringField(body, "measure_name")
	if msg != "" {
		return h.reject(c, http.StatusBadRequest, codeBadRequest, msg)
	}
	if !zipPattern.MatchString(zip) {
		return h.reject(c, http.StatusBadRequest, codeBadRequest, "zip must be a 5-digit string")
	}

	known, err := h.Counties.MeasureExists(ctx, measure)
	if err != nil {
		h.observe(metrics.OutcomeError)
		return internalError(c, "county_data", err)
	}
	if !known {
		valid, err := h.Counties.Measures(ctx)
		if err != nil {
			h.observe(metrics.OutcomeError)
			return internalError(c, "county_data", err)
		}
		h.observe(metrics.OutcomeRejected)
		c.Logger().Infof("county_data: zip=%s measure=%q unknown measure", zip, measure)
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":          codeBadRequest,
			"message":        "Invalid measure_name",
			"valid_measures": valid,
		})
	}

	rows, err := h.Counties.CountyData(ctx, zip, measure)
	switch {
	case errors.Is(err, repository.ErrZipNotFound), errors.Is(err, repository.ErrNoData):
		h.observe(metrics.OutcomeNotFound)
		c.Logger().Infof("county_data: zip=%s measure=%q no data (%v)", zip, measure, err)
		return errorJSON(c, http.StatusNotFound, codeNotFound, "No data found for the given parameters")
	case err != nil:
		h.observe(metrics.OutcomeError)
		return internalError(c, "county_data", err)
	}

	h.observe(metrics.OutcomeFound)
	c.Logger().Infof("county_data: zip=%s measure=%q rows=%d", zip, measure, len(rows))
	return c.JSON(http.StatusOK, rows)
}

func (h *APIHandler) reject(c echo.Context, status int, code, msg string) error {
	h.observe(metrics.OutcomeRejected)
	return errorJSON(c, status, code, msg)
}

func (h *APIHandler) observe(outcome string) {
	if h.Metrics != nil {
		h.Metrics.ObserveLookup(outcome)
	}
}

// stringField returns body[key] as a string, or a client message explaining
// why it cannot.
func stringField(body map[string]any, key string) (string, string) {
	v, ok := body[key]
	if !ok || v == nil {
		return "", key + " is required"
	}
	s, ok := v.(string)
	if !ok {
		return "", key + " must be a string"
	}
	return s, ""
}
