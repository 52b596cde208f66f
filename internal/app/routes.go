package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/middleware"
	"github.com/syphax/syphax/internal/plugins/auth"
	"github.com/syphax/syphax/internal/plugins/notify"
)

// RegisterRoutes sets up all application routes. This is the single place
// where plugins are constructed and mounted.
func (a *App) RegisterRoutes() {
	e := a.Echo
	cfg := a.Config
	d := a.Deps

	e.GET("/healthz", a.healthz)

	// --- Auth plugin ---
	users := auth.NewUserRepository(d.DB)
	programs := auth.NewProgramRepository(d.DB)
	authService := auth.NewAuthService(users, programs, d.Cipher, d.Issuer, cfg.Auth.AccessTokenTTL)
	authHandler := auth.NewHandler(authService, d.Notifier, auth.HandlerConfig{
		CookieName:       cfg.Auth.RefreshCookieName,
		CookieSecure:     cfg.Auth.CookieSecure,
		RefreshDays:      cfg.Auth.RefreshDays,
		StaySignedInDays: cfg.Auth.StaySignedInDays,
		Location:         cfg.Auth.Location,
	})

	requireAuth := auth.RequireAuth(authService, d.Notifier, cfg.Auth.RefreshCookieName)
	loginLimit := middleware.RateLimit(cfg.Auth.LoginRateLimit, time.Minute)
	auth.RegisterRoutes(e, authHandler, requireAuth, loginLimit)

	// --- Notify plugin ---
	notifyHandler := notify.NewHandler(d.Hub, d.Notifier, cfg.CORS.AllowedOrigins)
	notify.RegisterRoutes(e, notifyHandler, requireAuth, auth.RequireProgram)

	// --- Static storage ---
	e.Static("/storage/assets", cfg.Storage.PublicPath)
	private := e.Group("/storage/private/assets",
		auth.RequireAuthStatic(authService, cfg.Auth.RefreshCookieName))
	// The group owns a "/*" not-found route, so "" would never match.
	private.Static("/", cfg.Storage.PrivatePath)

	// Anything else under /api is a JSON 404 rather than Echo's default.
	notFound := func(echo.Context) error { return apperror.NewNotFound("Page not found!") }
	e.Any("/api", notFound)
	e.Any("/api/*", notFound)
}

// healthz reports whether the database is reachable. Redis is reported
// but never fails the check: without it notifications stay local.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	if a.Deps.Redis != nil {
		status["redis"] = "ok"
		if err := a.Deps.Redis.Ping(ctx).Err(); err != nil {
			slog.Warn("health check: redis unreachable", slog.Any("error", err))
			status["redis"] = "unavailable"
		}
	}

	if err := a.Deps.DB.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.Any("error", err))
		status["status"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
