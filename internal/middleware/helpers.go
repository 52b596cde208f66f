package middleware

import (
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a Templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(c.Request().Context(), c.Response().Writer)
}

// WantsJSON reports whether an error for this request should be rendered
// as a JSON envelope rather than an HTML page: API routes, the WebSocket
// endpoint and clients that ask for JSON.
func WantsJSON(c echo.Context) bool {
	path := c.Request().URL.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") || path == "/ws" {
		return true
	}
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
