package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error codes used in the "error" field of every error body.
const (
	codeBadRequest       = "bad_request"
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeTeapot           = "teapot"
	codeInternal         = "internal_error"
	codeUnavailable      = "unavailable"
)

// errorJSON writes the JSON error envelope {"error": code, "message": msg}.
func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

// internalError logs err and answers 500 without leaking any detail.
func internalError(c echo.Context, where string, err error) error {
	c.Logger().Errorf("%s: %v", where, err)
	return errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
}

// HTTPErrorHandler renders errors that escape the handlers (unknown routes,
// wrong methods, panics recovered by middleware) in the same JSON envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	code, msg := codeInternal, "Internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch {
		case status == http.StatusNotFound:
			code, msg = codeNotFound, "Not found"
		case status == http.StatusMethodNotAllowed:
			code, msg = codeMethodNotAllowed, "Method not allowed"
		case status < http.StatusInternalServerError:
			code, msg = codeBadRequest, http.StatusText(status)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
		default:
			status = http.StatusInternalServerError
		}
	}
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("unhandled error on %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = errorJSON(c, status, code, msg)
	}
	if werr != nil {
		c.Logger().Error(werr)
	}
}
