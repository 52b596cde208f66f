package notify

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the WebSocket endpoint and the data-ready trigger.
// guards run, in order, before the trigger; the app passes authentication
// followed by a program-only check.
func RegisterRoutes(e *echo.Echo, h *Handler, guards ...echo.MiddlewareFunc) {
	e.GET("/ws", h.Connect)
	e.POST("/api/programs/data-ready", h.DataReady, guards...)
}
