package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the auth endpoints under /api/auth plus /api/me.
// Login endpoints sit behind loginLimit; requireAuth guards /api/me.
// verifyToken and refreshToken run the refresh protocol themselves and
// need no guard.
func RegisterRoutes(e *echo.Echo, h *Handler, requireAuth, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/api/auth")

	g.POST("/login", h.Login, loginLimit)
	g.POST("/program/login", h.ProgramLogin, loginLimit)
	g.GET("/verifyToken", h.VerifyToken)
	g.POST("/refreshToken", h.RefreshToken)
	g.GET("/logout", h.Logout)
	g.POST("/logout", h.Logout)

	e.GET("/api/me", h.Me, requireAuth)
}
